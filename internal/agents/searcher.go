package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/fetch"
	"github.com/blogforge/blogforge/internal/helpers"
	"github.com/blogforge/blogforge/internal/llm"
	"github.com/blogforge/blogforge/internal/search"
)

const rankSystemPrompt = `You rank research material by how useful it is for writing a blog post on a given topic.`

const rankPromptTemplate = `Topic: %s

Articles:
%s
Respond with only a JSON array of article indices ordered from most to least relevant, e.g. [2, 0, 1].`

// Searcher finds, fetches and ranks source articles for a topic.
type Searcher struct {
	provider llm.Provider
	search   search.Provider
	fetcher  *fetch.Fetcher
	cfg      *config.Config
	logger   *log.Logger
}

// NewSearcher wires the search backend, fetcher and ranking model together.
func NewSearcher(provider llm.Provider, searchProvider search.Provider, fetcher *fetch.Fetcher, cfg *config.Config, logger *log.Logger) *Searcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCHER] ", log.LstdFlags)
	}
	return &Searcher{provider: provider, search: searchProvider, fetcher: fetcher, cfg: cfg, logger: logger}
}

// Search returns the top articles for the topic, fetched and ranked. The
// result carries at most Pipeline.MaxArticles items with RelevanceRank set
// from 1.
func (s *Searcher) Search(ctx context.Context, topic string) ([]fetch.Item, StepUsage, error) {
	var usage StepUsage

	results, err := s.search.Search(ctx, topic, s.cfg.Search.MaxResults)
	if err != nil {
		return nil, usage, fmt.Errorf("search %q: %w", topic, err)
	}
	if len(results) == 0 {
		return nil, usage, fmt.Errorf("no search results for %q", topic)
	}
	s.logger.Printf("found %d candidates for %q", len(results), topic)

	targets := make([]fetch.Target, 0, len(results))
	for _, r := range results {
		targets = append(targets, fetch.Target{Title: r.Title, URL: r.URL, Snippet: r.Snippet, Source: r.Source})
	}
	items := s.fetcher.Fetch(ctx, targets)
	if len(items) == 0 {
		return nil, usage, fmt.Errorf("none of the %d candidates for %q could be fetched", len(results), topic)
	}
	s.logger.Printf("fetched %d of %d candidates", len(items), len(targets))

	ranked := s.rank(ctx, topic, items, &usage)
	if max := s.cfg.Pipeline.MaxArticles; len(ranked) > max {
		ranked = ranked[:max]
	}
	for i := range ranked {
		ranked[i].RelevanceRank = i + 1
	}
	return ranked, usage, nil
}

// rank reorders items by LLM-judged relevance. Indices missing from the
// reply keep their fetch order at the end; an unparseable reply keeps the
// fetch order entirely.
func (s *Searcher) rank(ctx context.Context, topic string, items []fetch.Item, usage *StepUsage) []fetch.Item {
	var digest strings.Builder
	for i, item := range items {
		fmt.Fprintf(&digest, "[%d] %s\n%s\n\n", i, item.Title, helpers.Truncate(item.Snippet, 300))
	}

	model := s.cfg.LLM.Routing.Model("search")
	text, llmUsage, err := s.provider.Generate(ctx, rankSystemPrompt, fmt.Sprintf(rankPromptTemplate, topic, digest.String()), model, llm.Options{})
	if err != nil {
		s.logger.Printf("WARN: ranking call failed, keeping fetch order: %v", err)
		return items
	}
	usage.add(model, llmUsage, s.provider.CalculateCost(model, llmUsage))

	var order []int
	if err := helpers.DecodeInto(text, &order); err != nil {
		recoverable("search.rank", err, s.logger)
		return items
	}

	ranked := make([]fetch.Item, 0, len(items))
	seen := make(map[int]struct{}, len(items))
	for _, idx := range order {
		if idx < 0 || idx >= len(items) {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		ranked = append(ranked, items[idx])
	}
	for i, item := range items {
		if _, ok := seen[i]; !ok {
			ranked = append(ranked, item)
		}
	}
	return ranked
}
