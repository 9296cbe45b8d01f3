// Package store persists run history and crawled articles in SQL. Two
// backends implement the same interface: Postgres for shared deployments and
// an embedded SQLite file for single-machine installs. Checkpoint files stay
// the resume source of truth; the store is history and metadata.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/crawler"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

var (
	// ErrNotFound reports a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrEmailTaken reports a signup against an already registered email.
	ErrEmailTaken = errors.New("email already registered")
)

// Run is one pipeline run's history row.
type Run struct {
	ID         string     `json:"id"`
	Topic      string     `json:"topic"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Article is a crawled and summarized item as stored.
type Article struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Body        string     `json:"body,omitempty"`
	KeyPoints   []string   `json:"key_points,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	SourceType  string     `json:"source_type"`
	Length      int        `json:"length"`
	CrawledAt   time.Time  `json:"crawled_at"`
}

// Review is a reviewer report attached to a run.
type Review struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Reliability float64   `json:"reliability"`
	ToneMatch   float64   `json:"tone_match,omitempty"`
	Corrections int       `json:"corrections"`
	Notes       []string  `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the persistence surface shared by both backends.
type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string) error
	GetUserByEmail(ctx context.Context, email string) (id, passwordHash string, err error)

	StartRun(ctx context.Context, id, topic string) error
	FinishRun(ctx context.Context, id, status, errMsg string) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	SaveArticle(ctx context.Context, item crawler.Content) error
	ListArticles(ctx context.Context, sourceType string, limit int) ([]Article, error)

	SaveReview(ctx context.Context, review Review) error
	ListReviews(ctx context.Context, runID string) ([]Review, error)

	Close() error
}

// Open builds the configured backend. An empty driver disables persistence;
// callers treat a nil store as the feature being off.
func Open(ctx context.Context, cfg config.StoreConfig, logger *log.Logger) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return OpenPostgres(ctx, cfg.Postgres.DSN(), logger)
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLite.Path, logger)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

const defaultListLimit = 50

// Both backends select columns in the orders the scan helpers below expect:
// runs: id, topic, status, error, started_at, finished_at
// articles: id, title, url, author, published_at, summary, body, key_points,
//           tags, source_type, content_length, crawled_at
// reviews: id, run_id, reliability, tone_match, corrections, notes, created_at

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var errMsg sql.NullString
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.Topic, &r.Status, &errMsg, &r.StartedAt, &finished); err != nil {
		return Run{}, err
	}
	r.Error = errMsg.String
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

func scanArticle(row scanner) (Article, error) {
	var a Article
	var author, summary, body sql.NullString
	var published sql.NullTime
	var keyPoints, tags []byte
	err := row.Scan(&a.ID, &a.Title, &a.URL, &author, &published, &summary, &body,
		&keyPoints, &tags, &a.SourceType, &a.Length, &a.CrawledAt)
	if err != nil {
		return Article{}, err
	}
	a.Author = author.String
	a.Summary = summary.String
	a.Body = body.String
	if published.Valid {
		t := published.Time
		a.PublishedAt = &t
	}
	a.KeyPoints = decodeStrings(keyPoints)
	a.Tags = decodeStrings(tags)
	return a, nil
}

func scanReview(row scanner) (Review, error) {
	var r Review
	var notes []byte
	if err := row.Scan(&r.ID, &r.RunID, &r.Reliability, &r.ToneMatch, &r.Corrections, &notes, &r.CreatedAt); err != nil {
		return Review{}, err
	}
	r.Notes = decodeStrings(notes)
	return r, nil
}

// String lists are stored as JSON text so both backends share one column
// shape.
func encodeStrings(values []string) []byte {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return data
}

func decodeStrings(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
