// Package archive keeps a local full-text index of summarized crawl results,
// searchable from the CLI and the HTTP API.
package archive

import (
	"fmt"
	"log"
	"time"

	"github.com/blevesearch/bleve"

	"github.com/blogforge/blogforge/internal/crawler"
	"github.com/blogforge/blogforge/internal/helpers"
)

const (
	defaultLimit = 10
	snippetChars = 200
)

// Document is the indexed shape of one archived item.
type Document struct {
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Body       string    `json:"body"`
	Summary    string    `json:"summary"`
	Tags       []string  `json:"tags"`
	SourceType string    `json:"source_type"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Hit is one ranked search result.
type Hit struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	SourceType string  `json:"source_type"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
}

// Archive wraps a bleve index on disk. Document identity is the canonical
// URL fingerprint, so re-crawling a page updates its entry instead of
// duplicating it.
type Archive struct {
	index  bleve.Index
	path   string
	logger *log.Logger
}

// Open opens the index at path, creating it on first use.
func Open(path string, logger *log.Logger) (*Archive, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[ARCHIVE] ", log.LstdFlags)
	}
	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("opening archive index %s: %w", path, err)
	}
	return &Archive{index: index, path: path, logger: logger}, nil
}

// Index stores one summarized item.
func (a *Archive) Index(item crawler.Content) error {
	if item.URL == "" {
		return fmt.Errorf("archive item missing url")
	}
	id, err := helpers.URLFingerprint(item.URL)
	if err != nil {
		return fmt.Errorf("fingerprinting %s: %w", item.URL, err)
	}
	doc := Document{
		Title:      item.Title,
		URL:        item.URL,
		Body:       item.Body,
		Summary:    item.Summary,
		Tags:       item.Tags,
		SourceType: item.SourceType,
		ArchivedAt: time.Now().UTC(),
	}
	if err := a.index.Index(id, doc); err != nil {
		return fmt.Errorf("indexing %s: %w", item.URL, err)
	}
	return nil
}

// Search runs a query-string search and returns ranked hits.
func (a *Archive) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"*"}

	res, err := a.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching archive: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for i, hit := range res.Hits {
		snippetSource := stringField(hit.Fields, "summary")
		if snippetSource == "" {
			snippetSource = stringField(hit.Fields, "body")
		}
		hits = append(hits, Hit{
			ID:         hit.ID,
			Title:      stringField(hit.Fields, "title"),
			URL:        stringField(hit.Fields, "url"),
			SourceType: stringField(hit.Fields, "source_type"),
			Snippet:    helpers.Truncate(snippetSource, snippetChars),
			Score:      hit.Score,
			Rank:       i + 1,
		})
	}
	return hits, nil
}

// Count returns the number of archived documents.
func (a *Archive) Count() (uint64, error) {
	return a.index.DocCount()
}

// Close releases the index.
func (a *Archive) Close() error {
	return a.index.Close()
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
