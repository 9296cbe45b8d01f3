package search

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/blogforge/blogforge/internal/helpers"
	"github.com/blogforge/blogforge/internal/llm"
)

const llmSearchSystemPrompt = `You are a research assistant with broad knowledge of technical writing on the web. Suggest real, well-known articles relevant to the user's topic.`

const llmSearchPromptTemplate = `Suggest up to %d existing articles about: %s

Respond with only a JSON array of objects, each with keys "title", "url" and "snippet". Prefer widely cited engineering blogs and official documentation.`

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>)\]]+`)

// LLMSearch asks the text-generation backend for article candidates. Used
// when no search API key is configured.
type LLMSearch struct {
	provider llm.Provider
	model    string
	logger   *log.Logger
}

// NewLLMSearch builds an LLM-backed provider bound to one configured model.
func NewLLMSearch(provider llm.Provider, model string, logger *log.Logger) *LLMSearch {
	return &LLMSearch{provider: provider, model: model, logger: logger}
}

// Search asks for candidates and parses the reply. When the reply carries no
// parseable JSON the raw text is scanned for URLs instead, so a chatty reply
// still yields usable targets.
func (s *LLMSearch) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	prompt := fmt.Sprintf(llmSearchPromptTemplate, limit, query)
	text, _, err := s.provider.Generate(ctx, llmSearchSystemPrompt, prompt, s.model, llm.Options{})
	if err != nil {
		return nil, fmt.Errorf("llm search: %w", err)
	}

	var results []Result
	if err := helpers.DecodeInto(text, &results); err != nil {
		s.logger.Printf("WARN: llm search reply was not JSON, scanning for URLs: %v", err)
		results = resultsFromURLs(text, limit)
	}

	filtered := make([]Result, 0, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		if r.Source == "" {
			r.Source = "llm"
		}
		filtered = append(filtered, r)
		if len(filtered) >= limit {
			break
		}
	}
	return filtered, nil
}

// resultsFromURLs salvages bare URLs out of a prose reply.
func resultsFromURLs(text string, limit int) []Result {
	matches := urlPattern.FindAllString(text, -1)
	seen := make(map[string]struct{})
	results := make([]Result, 0, len(matches))
	for _, match := range matches {
		// Prose URLs often end a sentence.
		match = strings.TrimRight(match, ".,;:!?")
		if _, ok := seen[match]; ok {
			continue
		}
		seen[match] = struct{}{}

		title := match
		if u, err := url.Parse(match); err == nil && u.Host != "" {
			title = u.Host
		}
		results = append(results, Result{Title: title, URL: match})
		if len(results) >= limit {
			break
		}
	}
	return results
}
