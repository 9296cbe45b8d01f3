// Package crawler collects developer content from configured blogs and
// YouTube channels and normalizes it into one Content shape. The Runner
// pushes crawled items through the filter chain, the summarizer and the
// configured sinks.
package crawler

import (
	"context"
	"time"
)

// Source type values carried by Content.
const (
	SourceBlog    = "blog"
	SourceYouTube = "youtube"
)

// Content is one crawled item, normalized across source types.
type Content struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Body        string    `json:"body"`
	Summary     string    `json:"summary,omitempty"`
	KeyPoints   []string  `json:"key_points,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	SourceType  string    `json:"source_type"`
	Length      int       `json:"length"`
}

// Filter judges one crawled item. The reason explains a rejection.
type Filter interface {
	Apply(item Content) (accepted bool, reason string)
}

// Summarizer enriches an item with generated summary material.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
	KeyPoints(ctx context.Context, text string) ([]string, error)
	Title(ctx context.Context, text string) (string, error)
	Categorize(ctx context.Context, text string) (string, error)
}

// Forwarder pushes a summarized item to an external destination.
type Forwarder interface {
	Forward(ctx context.Context, item Content) error
}

// Archiver indexes a summarized item for local search.
type Archiver interface {
	Index(item Content) error
}

// Recorder persists a summarized item to the run store.
type Recorder interface {
	SaveArticle(ctx context.Context, item Content) error
}
