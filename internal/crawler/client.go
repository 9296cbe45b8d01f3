package crawler

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/helpers"
	"github.com/blogforge/blogforge/internal/retry"
)

// Client is the shared HTTP client for crawl requests. It paces requests so
// consecutive calls are at least RequestDelay apart and retries rate limits
// and server errors with jittered exponential backoff.
type Client struct {
	http      *http.Client
	userAgent string
	delay     time.Duration
	policy    retry.Policy
	logger    *log.Logger

	mu   sync.Mutex
	last time.Time
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.code, e.url)
}

// NewClient builds a crawl client from the crawler config.
func NewClient(cfg config.CrawlerConfig, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[CRAWLER] ", log.LstdFlags)
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = "blogforge-crawler/1.0"
	}
	policy := retry.Policy{
		MaxAttempts: 3,
		BaseWait:    2 * time.Second,
		MaxWait:     30 * time.Second,
		Jitter: func(wait time.Duration) time.Duration {
			return wait + time.Duration(rand.Int63n(int64(time.Second)))
		},
		Logger: logger,
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		userAgent: userAgent,
		delay:     cfg.RequestDelay,
		policy:    policy,
		logger:    logger,
	}
}

// Get downloads rawURL and returns the response body. Rate-limit (429) and
// server-side (5xx) responses are retried; any other non-200 status fails
// immediately.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return retry.DoValue(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		c.throttle()
		return c.getOnce(ctx, rawURL)
	})
}

func (c *Client) getOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("building request for %s: %w", rawURL, err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		statusErr := &statusError{code: resp.StatusCode, url: rawURL}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, retry.Permanent(statusErr)
	}

	body, err := helpers.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return body, nil
}

// throttle blocks until the configured per-request delay has passed since the
// previous request issued through this client.
func (c *Client) throttle() {
	if c.delay <= 0 {
		return
	}
	c.mu.Lock()
	wait := c.delay - time.Since(c.last)
	if wait > 0 {
		c.last = c.last.Add(c.delay)
	} else {
		c.last = time.Now()
	}
	c.mu.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}
}
