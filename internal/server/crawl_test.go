package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/blogforge/blogforge/internal/archive"
	"github.com/blogforge/blogforge/internal/crawler"
	"github.com/blogforge/blogforge/internal/llm"
	"github.com/blogforge/blogforge/internal/tone"
)

func TestCrawlTrigger(t *testing.T) {
	fc := &fakeCrawler{sources: make(chan string, 4)}
	ts := newTestServer(t, Deps{Store: newFakeStore(), Pipeline: newFakePipeline(t), Crawler: fc})
	client := &http.Client{Timeout: 10 * time.Second}
	token := signupAndLogin(t, client, ts.URL)

	res := postJSON(t, client, ts.URL+"/api/crawl", token, CrawlRequest{Source: "blog"})
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.StatusCode)
	}
	var accepted CrawlAcceptedResponse
	if err := json.NewDecoder(res.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	res.Body.Close()
	if accepted.Source != crawler.SourceBlog {
		t.Fatalf("expected source blog, got %q", accepted.Source)
	}
	select {
	case got := <-fc.sources:
		if got != crawler.SourceBlog {
			t.Fatalf("expected the crawler to run for blog, got %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the crawl to start")
	}

	// empty source defaults to all
	res = postJSON(t, client, ts.URL+"/api/crawl", token, CrawlRequest{})
	res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for the default source, got %d", res.StatusCode)
	}
	select {
	case got := <-fc.sources:
		if got != crawler.SourceAll {
			t.Fatalf("expected source all, got %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the crawl to start")
	}

	res = postJSON(t, client, ts.URL+"/api/crawl", token, CrawlRequest{Source: "podcast"})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown source, got %d", res.StatusCode)
	}
}

func TestCrawlTriggerWithoutRunner(t *testing.T) {
	ts := newTestServer(t, Deps{Store: newFakeStore(), Pipeline: newFakePipeline(t)})
	client := &http.Client{Timeout: 10 * time.Second}
	token := signupAndLogin(t, client, ts.URL)

	res := postJSON(t, client, ts.URL+"/api/crawl", token, CrawlRequest{Source: "blog"})
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a crawler, got %d", res.StatusCode)
	}
}

func TestArchiveSearchEndpoint(t *testing.T) {
	arch, err := archive.Open(t.TempDir()+"/index.bleve", discard())
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { arch.Close() })
	item := crawler.Content{
		Title:      "Scaling Postgres connection pools",
		URL:        "https://example.com/post/scaling-postgres",
		Body:       "PgBouncer in transaction mode keeps connection counts sane.",
		SourceType: crawler.SourceBlog,
	}
	if err := arch.Index(item); err != nil {
		t.Fatalf("index item: %v", err)
	}

	ts := newTestServer(t, Deps{Store: newFakeStore(), Pipeline: newFakePipeline(t), Archive: arch})
	client := &http.Client{Timeout: 10 * time.Second}
	token := signupAndLogin(t, client, ts.URL)

	res := getWithToken(t, client, ts.URL+"/api/archive/search?q=pgbouncer", token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var hits []archive.Hit
	if err := json.NewDecoder(res.Body).Decode(&hits); err != nil {
		t.Fatalf("decode hits: %v", err)
	}
	res.Body.Close()
	if len(hits) != 1 || hits[0].URL != item.URL {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	res = getWithToken(t, client, ts.URL+"/api/archive/search", token)
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without a query, got %d", res.StatusCode)
	}
}

func TestArchiveSearchDisabled(t *testing.T) {
	ts := newTestServer(t, Deps{Store: newFakeStore(), Pipeline: newFakePipeline(t)})
	client := &http.Client{Timeout: 10 * time.Second}
	token := signupAndLogin(t, client, ts.URL)

	res := getWithToken(t, client, ts.URL+"/api/archive/search?q=anything", token)
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the archive is off, got %d", res.StatusCode)
	}
}

type profileProvider struct{ text string }

func (p *profileProvider) Generate(ctx context.Context, systemPrompt, userPrompt, model string, opts llm.Options) (string, llm.Usage, error) {
	return p.text, llm.Usage{}, nil
}

func (p *profileProvider) CalculateCost(model string, usage llm.Usage) float64 { return 0 }

func (p *profileProvider) AvailableModels() []string { return nil }

func TestToneAnalyzeEndpoint(t *testing.T) {
	reply := `{"characteristics":"direct","vocabulary":"technical","patterns":"short sentences","style":"peer to peer"}`
	learner := tone.NewLearner(&profileProvider{text: reply}, "analysis", discard())
	cache, err := tone.NewCache(t.TempDir(), discard())
	if err != nil {
		t.Fatalf("new tone cache: %v", err)
	}

	ts := newTestServer(t, Deps{Store: newFakeStore(), Pipeline: newFakePipeline(t), Learner: learner, ToneCache: cache})
	client := &http.Client{Timeout: 10 * time.Second}
	token := signupAndLogin(t, client, ts.URL)

	res := postJSON(t, client, ts.URL+"/api/tone/analyze", token, ToneAnalyzeRequest{Text: "A reference writing sample."})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var profile tone.Profile
	if err := json.NewDecoder(res.Body).Decode(&profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	res.Body.Close()
	if profile.Characteristics != "direct" || profile.Style != "peer to peer" {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	res = postJSON(t, client, ts.URL+"/api/tone/analyze", token, ToneAnalyzeRequest{Text: "   "})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", res.StatusCode)
	}
}
