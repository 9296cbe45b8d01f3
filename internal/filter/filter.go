// Package filter decides which crawled items are worth keeping. Filters are
// composed into a chain with AND semantics; the first reject wins and its
// reason is what the crawl log shows.
package filter

import (
	"log"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/crawler"
)

// Filter judges one crawled item. The reason explains a rejection.
type Filter interface {
	Name() string
	Apply(item crawler.Content) (accepted bool, reason string)
}

// Chain applies configured filters in order and short-circuits on the first
// reject.
type Chain struct {
	filters []Filter
	logger  *log.Logger
}

// NewChain builds the chain from config. A filter joins the chain only when
// its section is non-trivial, so an empty config accepts everything.
func NewChain(cfg config.FilterConfig, logger *log.Logger) *Chain {
	if logger == nil {
		logger = log.New(log.Writer(), "[FILTER] ", log.LstdFlags)
	}

	var filters []Filter
	if kw := cfg.Keywords; len(kw.Required) > 0 || len(kw.Excluded) > 0 {
		filters = append(filters, NewKeywordFilter(kw))
	}
	if cat := cfg.Categories; len(cat.Allowed) > 0 || len(cat.Excluded) > 0 {
		filters = append(filters, NewCategoryFilter(cat))
	}
	if l := cfg.Length; l.MinContent > 0 || l.MaxContent > 0 || l.MinTitle > 0 || l.MaxTitle > 0 {
		filters = append(filters, NewLengthFilter(l))
	}
	if q := cfg.Quality; q.MinWords > 0 || q.MinSentences > 0 || q.MinParagraphs > 0 {
		filters = append(filters, NewQualityFilter(q))
	}
	if cfg.BackendOnly {
		filters = append(filters, NewBackendFilter())
	}

	return &Chain{filters: filters, logger: logger}
}

// Apply runs the item through every filter. On a reject the reason carries
// the failing filter's name.
func (c *Chain) Apply(item crawler.Content) (bool, string) {
	for _, f := range c.filters {
		ok, reason := f.Apply(item)
		if !ok {
			return false, f.Name() + ": " + reason
		}
	}
	return true, ""
}

// Names lists the active filters in application order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.filters))
	for i, f := range c.filters {
		names[i] = f.Name()
	}
	return names
}
