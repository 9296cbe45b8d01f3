package crawler

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/retry"
)

func discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newTestClient builds a crawl client with no pacing delay and a fast retry
// policy so retry paths finish in milliseconds.
func newTestClient(delay time.Duration) *Client {
	c := NewClient(config.CrawlerConfig{RequestDelay: delay}, discard())
	c.policy = retry.Policy{
		MaxAttempts: 3,
		BaseWait:    time.Millisecond,
		MaxWait:     4 * time.Millisecond,
		Logger:      discard(),
	}
	return c
}

func TestGetSetsRequestHeaders(t *testing.T) {
	var userAgent, accept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		accept = r.Header.Get("Accept")
		io.WriteString(w, "ok")
	}))
	defer server.Close()

	body, err := newTestClient(0).Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
	if userAgent != "blogforge-crawler/1.0" {
		t.Fatalf("expected default user agent, got %q", userAgent)
	}
	if accept == "" {
		t.Fatal("expected an Accept header")
	}
}

func TestGetRetriesRateLimitAndServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch calls {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			io.WriteString(w, "recovered")
		}
	}))
	defer server.Close()

	body, err := newTestClient(0).Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if string(body) != "recovered" {
		t.Fatalf("expected body %q, got %q", "recovered", body)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestGetDoesNotRetryNotFound(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := newTestClient(0).Get(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestThrottleSpacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer server.Close()

	client := newTestClient(40 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.Get(context.Background(), server.URL); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("expected three paced requests to take at least 80ms, took %s", elapsed)
	}
}
