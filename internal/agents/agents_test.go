package agents

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/fetch"
	"github.com/blogforge/blogforge/internal/llm"
	"github.com/blogforge/blogforge/internal/search"
	"github.com/blogforge/blogforge/internal/tone"
)

// queueProvider replays scripted replies in order and records prompts.
type queueProvider struct {
	replies []string
	prompts []string
	err     error
}

func (q *queueProvider) Generate(ctx context.Context, systemPrompt, userPrompt, model string, opts llm.Options) (string, llm.Usage, error) {
	q.prompts = append(q.prompts, userPrompt)
	if q.err != nil {
		return "", llm.Usage{}, q.err
	}
	if len(q.replies) == 0 {
		return "", llm.Usage{}, fmt.Errorf("no scripted reply for call %d", len(q.prompts))
	}
	reply := q.replies[0]
	q.replies = q.replies[1:]
	return reply, llm.Usage{PromptTokens: 10, CompletionTokens: 5}, nil
}

func (q *queueProvider) CalculateCost(model string, usage llm.Usage) float64 { return 0.001 }

func (q *queueProvider) AvailableModels() []string { return []string{"fast"} }

type stubSearch struct {
	results []search.Result
	err     error
}

func (s stubSearch) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	return s.results, s.err
}

func testCfg() *config.Config {
	return &config.Config{
		LLM:    config.LLMConfig{Routing: config.LLMRoutingConfig{Fallback: "fast"}},
		Search: config.SearchConfig{Provider: "llm", MaxResults: 10},
		Fetcher: config.FetcherConfig{
			Concurrency:      5,
			Timeout:          5 * time.Second,
			MinContentLength: 10,
			Mode:             "http",
			UserAgent:        "blogforge-test/1.0",
		},
		Pipeline: config.PipelineConfig{
			MaxArticles:       3,
			TargetBlogLength:  1500,
			MinSections:       3,
			MaxSections:       7,
			SectionWordTarget: 300,
			MaxRetries:        3,
		},
		Tone: config.ToneConfig{MatchThreshold: 0.75},
	}
}

func discard() *log.Logger { return log.New(io.Discard, "", 0) }

func articleServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><head><title>T</title></head><body><article><p>`+
			`Substantial article content about the requested subject, long enough to pass filters.`+
			`</p></article></body></html>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearcherRanksAndCaps(t *testing.T) {
	srv := articleServer(t)
	cfg := testCfg()

	provider := &queueProvider{replies: []string{"[3, 1, 0, 2]"}}
	searcher := NewSearcher(provider, stubSearch{results: []search.Result{
		{Title: "A", URL: srv.URL + "/a"},
		{Title: "B", URL: srv.URL + "/b"},
		{Title: "C", URL: srv.URL + "/c"},
		{Title: "D", URL: srv.URL + "/d"},
	}}, fetch.New(cfg.Fetcher, nil, discard()), cfg, discard())

	items, usage, err := searcher.Search(context.Background(), "go testing")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected MaxArticles cap of 3, got %d", len(items))
	}
	if items[0].Title != "D" || items[1].Title != "B" || items[2].Title != "A" {
		t.Fatalf("ranking not applied: %q, %q, %q", items[0].Title, items[1].Title, items[2].Title)
	}
	for i, item := range items {
		if item.RelevanceRank != i+1 {
			t.Fatalf("expected rank %d, got %d", i+1, item.RelevanceRank)
		}
	}
	if usage.Tokens == 0 {
		t.Fatal("expected ranking usage to be recorded")
	}
}

func TestSearcherKeepsOrderOnUnparseableRanking(t *testing.T) {
	srv := articleServer(t)
	cfg := testCfg()

	provider := &queueProvider{replies: []string{"I would rank them by vibes."}}
	searcher := NewSearcher(provider, stubSearch{results: []search.Result{
		{Title: "A", URL: srv.URL + "/a"},
		{Title: "B", URL: srv.URL + "/b"},
	}}, fetch.New(cfg.Fetcher, nil, discard()), cfg, discard())

	items, _, err := searcher.Search(context.Background(), "topic")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if items[0].Title != "A" || items[1].Title != "B" {
		t.Fatalf("expected fetch order preserved, got %q, %q", items[0].Title, items[1].Title)
	}
}

func TestSearcherFailsWithoutResults(t *testing.T) {
	cfg := testCfg()
	searcher := NewSearcher(&queueProvider{}, stubSearch{}, fetch.New(cfg.Fetcher, nil, discard()), cfg, discard())
	if _, _, err := searcher.Search(context.Background(), "topic"); err == nil {
		t.Fatal("expected error when search yields nothing")
	}
}

func sourceItems() []fetch.Item {
	return []fetch.Item{
		{Title: "Article One", URL: "https://a.dev/1", Content: "Content one about the topic."},
		{Title: "Article Two", URL: "https://b.dev/2", Content: "Content two about the topic."},
	}
}

func TestPlannerBuildsPlan(t *testing.T) {
	provider := &queueProvider{replies: []string{
		`{"common_themes":["testing"],"unique_perspectives":["fuzzing"],"content_gaps":["benchmarks"],"key_concepts":["table tests"],"audience_level":"advanced"}`,
		`{"title":"Testing in Go","sections":[
			{"heading":"Why Tests Matter","key_points":["confidence"],"estimated_words":250},
			{"heading":"Table-Driven Tests","key_points":[]},
			{"heading":"Fuzzing","key_points":["corpus"],"estimated_words":0}
		]}`,
	}}
	planner := NewPlanner(provider, testCfg(), discard())

	plan, usage, err := planner.Plan(context.Background(), "go testing", sourceItems())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Title != "Testing in Go" || plan.Topic != "go testing" {
		t.Fatalf("unexpected plan identity: %+v", plan)
	}
	if plan.AudienceLevel != "advanced" {
		t.Fatalf("expected audience from analysis, got %q", plan.AudienceLevel)
	}
	if len(plan.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(plan.Sections))
	}
	// Default-fill for missing estimates and key points.
	if plan.Sections[1].KeyPoints[0] != "Table-Driven Tests" {
		t.Fatalf("expected heading as default key point, got %v", plan.Sections[1].KeyPoints)
	}
	if plan.Sections[2].EstimatedWords != 300 {
		t.Fatalf("expected section word target default, got %d", plan.Sections[2].EstimatedWords)
	}
	if usage.Tokens == 0 {
		t.Fatal("expected usage from two calls")
	}
}

func TestPlannerFallsBackOnGarbage(t *testing.T) {
	provider := &queueProvider{replies: []string{"no json here", "also no json"}}
	cfg := testCfg()
	planner := NewPlanner(provider, cfg, discard())

	plan, _, err := planner.Plan(context.Background(), "kubernetes", sourceItems())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Analysis.AudienceLevel != "intermediate" {
		t.Fatalf("expected generic analysis, got %+v", plan.Analysis)
	}
	if len(plan.Analysis.KeyConcepts) != 1 || plan.Analysis.KeyConcepts[0] != "kubernetes" {
		t.Fatalf("expected topic as key concept, got %v", plan.Analysis.KeyConcepts)
	}
	if len(plan.Sections) != 4 {
		t.Fatalf("expected canned outline, got %d sections", len(plan.Sections))
	}
	wantWords := cfg.Pipeline.TargetBlogLength / cfg.Pipeline.MinSections
	if plan.Sections[0].EstimatedWords != wantWords {
		t.Fatalf("expected %d estimated words, got %d", wantWords, plan.Sections[0].EstimatedWords)
	}
}

func TestPlannerTruncatesOversizedOutline(t *testing.T) {
	var sections []string
	for i := 0; i < 9; i++ {
		sections = append(sections, fmt.Sprintf(`{"heading":"S%d","key_points":["p"],"estimated_words":100}`, i))
	}
	provider := &queueProvider{replies: []string{
		`{"audience_level":"beginner"}`,
		`{"title":"T","sections":[` + strings.Join(sections, ",") + `]}`,
	}}
	planner := NewPlanner(provider, testCfg(), discard())

	plan, _, err := planner.Plan(context.Background(), "topic", sourceItems())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Sections) != 7 {
		t.Fatalf("expected truncation to MaxSections, got %d", len(plan.Sections))
	}
}

func TestWriterAssemblesDraft(t *testing.T) {
	provider := &queueProvider{replies: []string{
		"An opening that hooks the reader.",
		"Body of the first section.",
		`["point one","point two"]`,
		"Body of the second section.",
		"A closing summary.",
	}}
	writer := NewWriter(provider, testCfg(), discard())

	plan := Plan{
		Title: "Testing in Go",
		Topic: "go testing",
		Sections: []Section{
			{Heading: "Why Tests Matter", KeyPoints: []string{"confidence"}, EstimatedWords: 200},
			{Heading: "Table-Driven Tests", EstimatedWords: 300},
			{Heading: "Conclusion"},
		},
	}
	draft, usage, err := writer.Write(context.Background(), plan, sourceItems(), nil)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	md := draft.Markdown
	if !strings.HasPrefix(md, "# Testing in Go\n\nAn opening that hooks the reader.") {
		t.Fatalf("unexpected draft head:\n%s", md)
	}
	for _, want := range []string{"## Why Tests Matter", "## Table-Driven Tests", "## Conclusion\n\nA closing summary."} {
		if !strings.Contains(md, want) {
			t.Fatalf("draft missing %q:\n%s", want, md)
		}
	}
	if strings.Count(md, "## Conclusion") != 1 {
		t.Fatalf("duplicate conclusion section:\n%s", md)
	}
	if !strings.Contains(md, "## References\n\n- https://a.dev/1\n- https://b.dev/2") {
		t.Fatalf("references missing:\n%s", md)
	}
	if !strings.Contains(md, "*Generated on ") {
		t.Fatalf("dated footer missing:\n%s", md)
	}
	if draft.Metadata.Sections != 2 {
		t.Fatalf("expected 2 body sections, got %d", draft.Metadata.Sections)
	}
	if draft.Metadata.Slug != "testing-in-go" {
		t.Fatalf("expected slug from title, got %q", draft.Metadata.Slug)
	}
	if len(draft.Metadata.Sources) != 2 {
		t.Fatalf("expected source URLs recorded, got %v", draft.Metadata.Sources)
	}
	if draft.Metadata.WordCount == 0 || draft.Metadata.TokensUsed == 0 {
		t.Fatalf("metadata not filled: %+v", draft.Metadata)
	}
	// Key points flowed into the second section's prompt.
	if !strings.Contains(provider.prompts[3], "point one") {
		t.Fatalf("extracted key points missing from section prompt: %q", provider.prompts[3])
	}
	_ = usage
}

func TestWriterPropagatesSectionFailure(t *testing.T) {
	provider := &queueProvider{replies: []string{"intro only"}}
	writer := NewWriter(provider, testCfg(), discard())

	plan := Plan{Title: "T", Topic: "t", Sections: []Section{{Heading: "Body", KeyPoints: []string{"p"}}}}
	if _, _, err := writer.Write(context.Background(), plan, nil, nil); err == nil {
		t.Fatal("expected failure when a section call fails")
	}
}

func TestParseKeyPoints(t *testing.T) {
	points, err := parseKeyPoints(`["a","b"]`)
	if err != nil || len(points) != 2 {
		t.Fatalf("bare array: %v %v", points, err)
	}
	points, err = parseKeyPoints("```json\n{\"points\":[\"x\"]}\n```")
	if err != nil || len(points) != 1 || points[0] != "x" {
		t.Fatalf("wrapped list: %v %v", points, err)
	}
	if _, err = parseKeyPoints(`{"unrelated":true}`); err == nil {
		t.Fatal("expected error for object without a known key")
	}
}

func toneProfile() *tone.Profile {
	return &tone.Profile{
		Characteristics: "direct",
		Vocabulary:      "plain",
		Patterns:        "short sentences",
		Style:           "peer to peer",
	}
}

func TestReviewerAcceptsGoodTone(t *testing.T) {
	provider := &queueProvider{replies: []string{
		`{"corrected_text":"the corrected draft","corrections":["fix date"]}`,
		`{"reliability_score":0.9,"reliability_notes":["solid"]}`,
		`0.92`,
		`["cover fixtures next time"]`,
	}}
	reviewer := NewReviewer(provider, testCfg(), discard())

	report, final, _, err := reviewer.Review(context.Background(), "the draft", Plan{Title: "T", Topic: "t"}, toneProfile())
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if final != "the corrected draft" {
		t.Fatalf("expected the corrected text, got %q", final)
	}
	if report.ToneRevised {
		t.Fatal("no revision expected above threshold")
	}
	if report.ReliabilityScore != 0.9 || report.ToneMatchScore != 0.92 {
		t.Fatalf("unexpected scores: %+v", report)
	}
	if len(report.Corrections) != 1 {
		t.Fatalf("expected corrections preserved, got %v", report.Corrections)
	}
	if len(report.Learnings) != 1 {
		t.Fatalf("expected learnings preserved, got %v", report.Learnings)
	}
}

func TestReviewerRevisesPoorTone(t *testing.T) {
	provider := &queueProvider{replies: []string{
		`{"corrected_text":"","corrections":[]}`,
		`{"reliability_score":0.95}`,
		`0.4`,
		"the revised draft",
		`[]`,
	}}
	reviewer := NewReviewer(provider, testCfg(), discard())

	report, final, _, err := reviewer.Review(context.Background(), "the draft", Plan{Title: "T"}, toneProfile())
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if !report.ToneRevised {
		t.Fatal("expected revision below threshold")
	}
	if final != "the revised draft" {
		t.Fatalf("expected revised content, got %q", final)
	}
}

func TestReviewerFallsBackOnUnparseableReplies(t *testing.T) {
	provider := &queueProvider{replies: []string{
		"prose, not json",
		"still prose",
		"more prose",
	}}
	reviewer := NewReviewer(provider, testCfg(), discard())

	report, final, _, err := reviewer.Review(context.Background(), "the draft", Plan{Title: "T"}, nil)
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if report.ReliabilityScore != 0.8 {
		t.Fatalf("expected fallback score 0.8, got %v", report.ReliabilityScore)
	}
	if final != "the draft" {
		t.Fatalf("content should be unchanged, got %q", final)
	}
	if len(report.Corrections) != 0 || len(report.Learnings) != 0 {
		t.Fatalf("expected empty fallbacks, got %+v", report)
	}
}

func TestReviewerClampsScores(t *testing.T) {
	provider := &queueProvider{replies: []string{
		`{"corrected_text":"","corrections":[]}`,
		`{"reliability_score":7.5}`,
		`{"score":-3}`,
		"revised for tone",
		`[]`,
	}}
	reviewer := NewReviewer(provider, testCfg(), discard())

	report, final, _, err := reviewer.Review(context.Background(), "draft", Plan{Title: "T"}, toneProfile())
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if report.ReliabilityScore != 1 {
		t.Fatalf("expected clamp to 1, got %v", report.ReliabilityScore)
	}
	if report.ToneMatchScore != 0 {
		t.Fatalf("expected clamp to 0, got %v", report.ToneMatchScore)
	}
	if !report.ToneRevised {
		t.Fatal("expected revision attempt for clamped zero score")
	}
	if final != "revised for tone" {
		t.Fatalf("expected the revision applied, got %q", final)
	}
}
