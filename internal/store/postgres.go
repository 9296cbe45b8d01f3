package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/blogforge/blogforge/internal/crawler"
)

// Postgres is the lib/pq backed store. Schema management is external:
// `blogforge migrate` applies the files under migrations/.
type Postgres struct {
	db     *sql.DB
	logger *log.Logger
}

func OpenPostgres(ctx context.Context, dsn string, logger *log.Logger) (*Postgres, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db, logger: logger}, nil
}

// Migrate applies migration files to a Postgres database.
// dir example: file://migrations. A no-change result is success.
func Migrate(dir, dsn, direction string, steps int) error {
	if dir == "" {
		dir = "file://migrations"
	}
	m, err := migrate.New(dir, dsn)
	if err != nil {
		return err
	}
	apply := func(fn func() error) error {
		if err := fn(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		return nil
	}
	switch direction {
	case "up":
		if steps > 0 {
			return apply(func() error { return m.Steps(steps) })
		}
		return apply(m.Up)
	case "down":
		if steps > 0 {
			return apply(func() error { return m.Steps(-steps) })
		}
		return apply(m.Down)
	default:
		return fmt.Errorf("unknown direction %q", direction)
	}
}

func (p *Postgres) CreateUser(ctx context.Context, email, passwordHash string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES ($1,$2,$3)`,
		uuid.NewString(), email, passwordHash)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := p.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("%w: user %s", ErrNotFound, email)
	}
	return id, hash, err
}

func (p *Postgres) StartRun(ctx context.Context, id, topic string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO runs (id, topic, status, started_at) VALUES ($1,$2,$3,$4)`,
		id, topic, RunStatusRunning, time.Now().UTC())
	return err
}

func (p *Postgres) FinishRun(ctx context.Context, id, status, errMsg string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE runs SET status=$2, error=NULLIF($3,''), finished_at=$4 WHERE id=$1`,
		id, status, errMsg, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return nil
}

func (p *Postgres) GetRun(ctx context.Context, id string) (Run, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, topic, status, error, started_at, finished_at FROM runs WHERE id=$1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return run, err
}

func (p *Postgres) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, topic, status, error, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
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

func (p *Postgres) SaveArticle(ctx context.Context, item crawler.Content) error {
	if item.URL == "" {
		return fmt.Errorf("article url is required")
	}
	_, err := p.db.ExecContext(ctx, `
INSERT INTO articles (id, title, url, author, published_at, summary, body, key_points, tags, source_type, content_length, crawled_at)
VALUES ($1,$2,$3,NULLIF($4,''),$5,NULLIF($6,''),$7,$8,$9,$10,$11,$12)
ON CONFLICT (url) DO UPDATE SET
  title          = EXCLUDED.title,
  author         = EXCLUDED.author,
  published_at   = EXCLUDED.published_at,
  summary        = EXCLUDED.summary,
  body           = EXCLUDED.body,
  key_points     = EXCLUDED.key_points,
  tags           = EXCLUDED.tags,
  source_type    = EXCLUDED.source_type,
  content_length = EXCLUDED.content_length,
  crawled_at     = EXCLUDED.crawled_at;
`, uuid.NewString(), item.Title, item.URL, item.Author, nullableTime(item.PublishedAt),
		item.Summary, item.Body, encodeStrings(item.KeyPoints), encodeStrings(item.Tags),
		item.SourceType, item.Length, time.Now().UTC())
	return err
}

func (p *Postgres) ListArticles(ctx context.Context, sourceType string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `SELECT id, title, url, author, published_at, summary, body, key_points, tags, source_type, content_length, crawled_at FROM articles`
	var args []any
	if sourceType != "" {
		query += ` WHERE source_type=$1 ORDER BY crawled_at DESC LIMIT $2`
		args = append(args, sourceType, limit)
	} else {
		query += ` ORDER BY crawled_at DESC LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
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

func (p *Postgres) SaveReview(ctx context.Context, review Review) error {
	if review.RunID == "" {
		return fmt.Errorf("review run id is required")
	}
	id := review.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO reviews (id, run_id, reliability, tone_match, corrections, notes, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		id, review.RunID, review.Reliability, review.ToneMatch, review.Corrections,
		encodeStrings(review.Notes), time.Now().UTC())
	return err
}

func (p *Postgres) ListReviews(ctx context.Context, runID string) ([]Review, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, run_id, reliability, tone_match, corrections, notes, created_at FROM reviews WHERE run_id=$1 ORDER BY created_at`, runID)
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

func (p *Postgres) Close() error { return p.db.Close() }
