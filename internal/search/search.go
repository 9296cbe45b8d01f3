// Package search discovers candidate articles for a blog topic, either
// through the Serper web-search API or by asking the text-generation backend
// directly when no search key is configured.
package search

import (
	"context"
	"fmt"
	"log"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/llm"
)

// Result is one discovered article candidate.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Provider finds article candidates for a query.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// New selects the configured search backend.
func New(cfg config.SearchConfig, provider llm.Provider, model string, logger *log.Logger) (Provider, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	switch cfg.Provider {
	case "serper":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("serper search requires an API key")
		}
		return NewSerper(cfg, logger), nil
	case "llm", "":
		if provider == nil {
			return nil, fmt.Errorf("llm search requires a text-generation provider")
		}
		return NewLLMSearch(provider, model, logger), nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", cfg.Provider)
	}
}
