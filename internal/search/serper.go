package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/helpers"
	"github.com/blogforge/blogforge/internal/retry"
)

const defaultSerperEndpoint = "https://google.serper.dev/search"

// Serper queries the serper.dev Google search API.
type Serper struct {
	apiKey   string
	endpoint string
	client   *http.Client
	policy   retry.Policy
	logger   *log.Logger
}

// NewSerper builds a Serper-backed provider.
func NewSerper(cfg config.SearchConfig, logger *log.Logger) *Serper {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultSerperEndpoint
	}
	policy := retry.Default()
	policy.Retryable = retryableAPIStatus
	policy.Logger = logger
	return &Serper{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		policy:   policy,
		logger:   logger,
	}
}

// statusError is a non-2xx search API response.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("search API error (status %d): %s", e.Status, helpers.Truncate(e.Body, 200))
}

func retryableAPIStatus(err error) bool {
	if apiErr, ok := err.(*statusError); ok {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	return true
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search runs one query and returns up to limit organic results.
func (s *Serper) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	payload, err := json.Marshal(map[string]any{"q": query, "num": limit})
	if err != nil {
		return nil, fmt.Errorf("marshal search payload: %w", err)
	}

	return retry.DoValue(ctx, s.policy, func(ctx context.Context) ([]Result, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, retry.Permanent(err)
		}
		req.Header.Set("X-API-KEY", s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("serper request: %w", err)
		}
		body, err := helpers.ReadAllAndClose(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read serper response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &statusError{Status: resp.StatusCode, Body: string(body)}
		}

		var parsed serperResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("decode serper response: %w", err)
		}

		results := make([]Result, 0, len(parsed.Organic))
		for i, item := range parsed.Organic {
			if i >= limit {
				break
			}
			results = append(results, Result{
				Title:   item.Title,
				URL:     item.Link,
				Snippet: item.Snippet,
				Source:  "serper",
			})
		}
		return results, nil
	})
}
