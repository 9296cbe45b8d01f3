// Package fetch retrieves article content for a list of URLs with a fixed
// concurrency ceiling. Individual failures and thin pages are filtered out
// rather than failing the batch, and surviving items keep the input order.
package fetch

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/helpers"
	"github.com/blogforge/blogforge/internal/telemetry"
)

// Target is one URL to fetch, carrying metadata from the search step.
type Target struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Item is the extracted content of one successfully fetched target.
// RelevanceRank is assigned by a later ranking pass, not by the fetcher.
type Item struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Content       string `json:"content"`
	Snippet       string `json:"snippet,omitempty"`
	Source        string `json:"source,omitempty"`
	RelevanceRank int    `json:"relevance_rank,omitempty"`
}

// Fetcher downloads pages over plain HTTP or a headless browser and reduces
// them to readable text.
type Fetcher struct {
	cfg    config.FetcherConfig
	client *http.Client
	logger *log.Logger
	tel    *telemetry.Telemetry
}

// New builds a fetcher. The shared HTTP client carries no timeout of its own;
// each fetch gets a per-call deadline instead.
func New(cfg config.FetcherConfig, tel *telemetry.Telemetry, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[FETCH] ", log.LstdFlags)
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger,
		tel:    tel,
	}
}

// Fetch retrieves all targets with at most Concurrency in flight. The result
// holds only the successful, long-enough items, in input order.
func (f *Fetcher) Fetch(ctx context.Context, targets []Target) []Item {
	results := make([]*Item, len(targets))
	sem := make(chan struct{}, f.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			start := time.Now()
			item, err := f.fetchOne(ctx, target)
			f.record(target.URL, time.Since(start), err == nil)
			if err != nil {
				f.logger.Printf("WARN: fetch %s: %v", target.URL, err)
				return
			}
			results[i] = item
		}(i, target)
	}
	wg.Wait()

	items := make([]Item, 0, len(targets))
	for _, item := range results {
		if item != nil {
			items = append(items, *item)
		}
	}
	return items
}

func (f *Fetcher) fetchOne(ctx context.Context, target Target) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	var (
		rawHTML string
		err     error
	)
	if f.cfg.Mode == "browser" {
		rawHTML, err = f.renderHTML(ctx, target.URL)
	} else {
		rawHTML, err = f.downloadHTML(ctx, target.URL)
	}
	if err != nil {
		return nil, err
	}

	title, content := Readable(rawHTML, target.URL)
	if target.Title != "" {
		title = target.Title
	}
	if len(content) < f.cfg.MinContentLength {
		return nil, fmt.Errorf("content too short (%d < %d chars)", len(content), f.cfg.MinContentLength)
	}

	return &Item{
		Title:   title,
		URL:     target.URL,
		Content: content,
		Snippet: target.Snippet,
		Source:  target.Source,
	}, nil
}

func (f *Fetcher) downloadHTML(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	body, err := helpers.ReadAllAndClose(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return string(body), nil
}

// Readable reduces markup to plain text, preferring the readability
// extraction and falling back to a structural-noise strip when it yields
// nothing usable. The crawler uses it for pages it downloads itself.
func Readable(rawHTML, rawURL string) (title, content string) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		parsed = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
	if err == nil {
		title = strings.TrimSpace(article.Title)
		content = helpers.NormalizeLines(article.TextContent)
	}
	if content == "" {
		fallbackTitle, fallbackContent := textFromHTML(rawHTML)
		if title == "" {
			title = fallbackTitle
		}
		content = fallbackContent
	}
	return title, content
}

func (f *Fetcher) record(rawURL string, duration time.Duration, success bool) {
	if f.tel == nil {
		return
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	f.tel.RecordFetchEvent(telemetry.FetchEvent{
		Source:   host,
		Duration: duration,
		Success:  success,
	})
}
