package store

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/crawler"
)

func discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func configFor(driver, sqlitePath string) config.StoreConfig {
	return config.StoreConfig{Driver: driver, SQLite: config.SQLiteConfig{Path: sqlitePath}}
}

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), discard())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUserLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, "dev@example.com", "hashed"); err != nil {
		t.Fatalf("expected signup to succeed, got %v", err)
	}
	if err := s.CreateUser(ctx, "dev@example.com", "other"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken for a duplicate email, got %v", err)
	}

	id, hash, err := s.GetUserByEmail(ctx, "dev@example.com")
	if err != nil {
		t.Fatalf("expected lookup to succeed, got %v", err)
	}
	if id == "" || hash != "hashed" {
		t.Fatalf("unexpected user record: id=%q hash=%q", id, hash)
	}

	if _, _, err := s.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown email, got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := uuid.NewString()

	if err := s.StartRun(ctx, runID, "postgres indexing"); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("expected lookup to succeed, got %v", err)
	}
	if run.Status != RunStatusRunning || run.Topic != "postgres indexing" {
		t.Fatalf("unexpected run record: %+v", run)
	}
	if run.FinishedAt != nil {
		t.Fatalf("expected no finish time on a running run, got %v", run.FinishedAt)
	}

	if err := s.FinishRun(ctx, runID, RunStatusFailed, "step write: model unavailable"); err != nil {
		t.Fatalf("expected finish to succeed, got %v", err)
	}
	run, err = s.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("expected lookup to succeed, got %v", err)
	}
	if run.Status != RunStatusFailed || run.Error != "step write: model unavailable" {
		t.Fatalf("unexpected finished run: %+v", run)
	}
	if run.FinishedAt == nil {
		t.Fatal("expected a finish time")
	}

	if err := s.FinishRun(ctx, uuid.NewString(), RunStatusCompleted, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown run, got %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := uuid.NewString()
	newer := uuid.NewString()
	if err := s.StartRun(ctx, older, "first topic"); err != nil {
		t.Fatalf("start first run: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.StartRun(ctx, newer, "second topic"); err != nil {
		t.Fatalf("start second run: %v", err)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("expected list to succeed, got %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != newer || runs[1].ID != older {
		t.Fatalf("expected newest first, got %s then %s", runs[0].ID, runs[1].ID)
	}

	runs, err = s.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("expected list to succeed, got %v", err)
	}
	if len(runs) != 1 || runs[0].ID != newer {
		t.Fatalf("expected the limit to apply, got %d runs", len(runs))
	}
}

func TestSaveArticleUpsertsByURL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	published := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

	item := crawler.Content{
		Title:       "Scaling Postgres connection pools",
		URL:         "https://example.com/post/scaling-postgres",
		Author:      "Jamie Rivera",
		PublishedAt: published,
		Body:        "body text",
		Summary:     "summary text",
		KeyPoints:   []string{"pgbouncer", "transaction mode"},
		Tags:        []string{"postgres", "database"},
		SourceType:  crawler.SourceBlog,
		Length:      9,
	}
	if err := s.SaveArticle(ctx, item); err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}

	item.Title = "Scaling Postgres connection pools, revisited"
	item.Summary = "updated summary"
	if err := s.SaveArticle(ctx, item); err != nil {
		t.Fatalf("expected re-save to succeed, got %v", err)
	}

	articles, err := s.ListArticles(ctx, "", 0)
	if err != nil {
		t.Fatalf("expected list to succeed, got %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected the same url to replace, got %d rows", len(articles))
	}

	got := articles[0]
	if got.Title != "Scaling Postgres connection pools, revisited" || got.Summary != "updated summary" {
		t.Fatalf("expected updated fields, got %+v", got)
	}
	if got.Author != "Jamie Rivera" || got.SourceType != crawler.SourceBlog || got.Length != 9 {
		t.Fatalf("unexpected article record: %+v", got)
	}
	if len(got.KeyPoints) != 2 || len(got.Tags) != 2 {
		t.Fatalf("expected lists to round-trip, got %v and %v", got.KeyPoints, got.Tags)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(published) {
		t.Fatalf("expected publish date to round-trip, got %v", got.PublishedAt)
	}

	if err := s.SaveArticle(ctx, crawler.Content{Title: "no url"}); err == nil {
		t.Fatal("expected an error for a missing url")
	}
}

func TestListArticlesFiltersBySource(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	blog := crawler.Content{Title: "blog post", URL: "https://example.com/post/a", SourceType: crawler.SourceBlog}
	video := crawler.Content{Title: "video", URL: "https://youtube.com/watch?v=a", SourceType: crawler.SourceYouTube}
	if err := s.SaveArticle(ctx, blog); err != nil {
		t.Fatalf("save blog article: %v", err)
	}
	if err := s.SaveArticle(ctx, video); err != nil {
		t.Fatalf("save video article: %v", err)
	}

	articles, err := s.ListArticles(ctx, crawler.SourceYouTube, 0)
	if err != nil {
		t.Fatalf("expected list to succeed, got %v", err)
	}
	if len(articles) != 1 || articles[0].SourceType != crawler.SourceYouTube {
		t.Fatalf("expected only youtube articles, got %+v", articles)
	}
}

func TestReviewsByRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := uuid.NewString()

	if err := s.StartRun(ctx, runID, "topic"); err != nil {
		t.Fatalf("start run: %v", err)
	}
	review := Review{
		RunID:       runID,
		Reliability: 0.9,
		ToneMatch:   0.82,
		Corrections: 3,
		Notes:       []string{"sources verified", "tone consistent"},
	}
	if err := s.SaveReview(ctx, review); err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}

	reviews, err := s.ListReviews(ctx, runID)
	if err != nil {
		t.Fatalf("expected list to succeed, got %v", err)
	}
	if len(reviews) != 1 {
		t.Fatalf("expected 1 review, got %d", len(reviews))
	}
	got := reviews[0]
	if got.ID == "" || got.Reliability != 0.9 || got.Corrections != 3 || len(got.Notes) != 2 {
		t.Fatalf("unexpected review record: %+v", got)
	}

	if err := s.SaveReview(ctx, Review{Reliability: 0.5}); err == nil {
		t.Fatal("expected an error for a review without a run id")
	}
}

func TestOpenFactorySelectsDriver(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, configFor("", ""), discard())
	if err != nil || st != nil {
		t.Fatalf("expected a disabled store for an empty driver, got %v / %v", st, err)
	}

	if _, err := Open(ctx, configFor("mongodb", ""), discard()); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}

	st, err = Open(ctx, configFor("sqlite", filepath.Join(t.TempDir(), "f.db")), discard())
	if err != nil {
		t.Fatalf("expected the sqlite backend to open, got %v", err)
	}
	if st == nil {
		t.Fatal("expected a store instance")
	}
	st.Close()
}
