package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/blogforge/blogforge/internal/crawler"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    topic TEXT NOT NULL,
    status TEXT NOT NULL,
    error TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE TABLE IF NOT EXISTS articles (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    url TEXT UNIQUE NOT NULL,
    author TEXT,
    published_at TIMESTAMP,
    summary TEXT,
    body TEXT,
    key_points TEXT,
    tags TEXT,
    source_type TEXT NOT NULL,
    content_length INTEGER NOT NULL DEFAULT 0,
    crawled_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_articles_crawled ON articles(source_type, crawled_at);
CREATE TABLE IF NOT EXISTS reviews (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    reliability REAL NOT NULL,
    tone_match REAL NOT NULL DEFAULT 0,
    corrections INTEGER NOT NULL DEFAULT 0,
    notes TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reviews_run ON reviews(run_id);
`

// SQLite is the embedded backend. The schema is created on open, so installs
// need no migration step.
type SQLite struct {
	db     *sql.DB
	logger *log.Logger
}

func OpenSQLite(ctx context.Context, path string, logger *log.Logger) (*SQLite, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	if path == "" {
		path = filepath.Join("workspace", "blogforge.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLite{db: db, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (s *SQLite) CreateUser(ctx context.Context, email, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES (?,?,?)`,
		uuid.NewString(), email, passwordHash)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (s *SQLite) GetUserByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email=?`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("%w: user %s", ErrNotFound, email)
	}
	return id, hash, err
}

func (s *SQLite) StartRun(ctx context.Context, id, topic string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, topic, status, started_at) VALUES (?,?,?,?)`,
		id, topic, RunStatusRunning, time.Now().UTC())
	return err
}

func (s *SQLite) FinishRun(ctx context.Context, id, status, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status=?, error=NULLIF(?,''), finished_at=? WHERE id=?`,
		status, errMsg, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLite) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, topic, status, error, started_at, finished_at FROM runs WHERE id=?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return run, err
}

func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, status, error, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveArticle(ctx context.Context, item crawler.Content) error {
	if item.URL == "" {
		return fmt.Errorf("article url is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO articles (id, title, url, author, published_at, summary, body, key_points, tags, source_type, content_length, crawled_at)
VALUES (?,?,?,NULLIF(?,''),?,NULLIF(?,''),?,?,?,?,?,?)
ON CONFLICT (url) DO UPDATE SET
  title          = excluded.title,
  author         = excluded.author,
  published_at   = excluded.published_at,
  summary        = excluded.summary,
  body           = excluded.body,
  key_points     = excluded.key_points,
  tags           = excluded.tags,
  source_type    = excluded.source_type,
  content_length = excluded.content_length,
  crawled_at     = excluded.crawled_at;
`, uuid.NewString(), item.Title, item.URL, item.Author, nullableTime(item.PublishedAt),
		item.Summary, item.Body, encodeStrings(item.KeyPoints), encodeStrings(item.Tags),
		item.SourceType, item.Length, time.Now().UTC())
	return err
}

func (s *SQLite) ListArticles(ctx context.Context, sourceType string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `SELECT id, title, url, author, published_at, summary, body, key_points, tags, source_type, content_length, crawled_at FROM articles`
	var args []any
	if sourceType != "" {
		query += ` WHERE source_type=? ORDER BY crawled_at DESC LIMIT ?`
		args = append(args, sourceType, limit)
	} else {
		query += ` ORDER BY crawled_at DESC LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, article)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveReview(ctx context.Context, review Review) error {
	if review.RunID == "" {
		return fmt.Errorf("review run id is required")
	}
	id := review.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews (id, run_id, reliability, tone_match, corrections, notes, created_at) VALUES (?,?,?,?,?,?,?)`,
		id, review.RunID, review.Reliability, review.ToneMatch, review.Corrections,
		encodeStrings(review.Notes), time.Now().UTC())
	return err
}

func (s *SQLite) ListReviews(ctx context.Context, runID string) ([]Review, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, reliability, tone_match, corrections, notes, created_at FROM reviews WHERE run_id=? ORDER BY created_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, review)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }
