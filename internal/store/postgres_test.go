package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/blogforge/blogforge/internal/crawler"
)

func startPostgres(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "blogforge",
			"POSTGRES_PASSWORD": "blogforge",
			"POSTGRES_DB":       "blogforge",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(1).WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		_ = pg.Terminate(ctx)
		t.Fatalf("failed to get mapped port: %v", err)
	}
	host, err := pg.Host(ctx)
	if err != nil {
		_ = pg.Terminate(ctx)
		t.Fatalf("failed to get host: %v", err)
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", "blogforge", "blogforge", host, port.Port(), "blogforge")
	return pg, dsn
}

func findMigrationsDir(t *testing.T) string {
	t.Helper()
	cwd, _ := os.Getwd()
	for i := 0; i < 6; i++ {
		candidate := filepath.Join(cwd, "migrations")
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return "file://" + candidate
		}
		cwd = filepath.Dir(cwd)
	}
	t.Fatalf("could not locate migrations directory from test cwd")
	return ""
}

func TestPostgresStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()
	pg, dsn := startPostgres(t, ctx)
	defer func() { _ = pg.Terminate(ctx) }()

	// run migrations explicitly, retry a few times for readiness
	migDir := findMigrationsDir(t)
	var migErr error
	for i := 0; i < 6; i++ {
		migErr = Migrate(migDir, dsn, "up", 0)
		if migErr == nil {
			break
		}
		time.Sleep(300 * time.Millisecond)
	}
	if migErr != nil {
		t.Fatalf("migrate up failed after retries: %v", migErr)
	}

	s, err := OpenPostgres(ctx, dsn, discard())
	if err != nil {
		t.Fatalf("open postgres store: %v", err)
	}
	defer s.Close()

	// users
	if err := s.CreateUser(ctx, "alice@example.com", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, "alice@example.com", "hash"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken for a duplicate email, got %v", err)
	}
	if _, _, err := s.GetUserByEmail(ctx, "ghost@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown email, got %v", err)
	}

	// runs
	runID := uuid.NewString()
	if err := s.StartRun(ctx, runID, "kubernetes operators"); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := s.FinishRun(ctx, runID, RunStatusCompleted, ""); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != RunStatusCompleted || run.Error != "" || run.FinishedAt == nil {
		t.Fatalf("unexpected run record: %+v", run)
	}

	// articles upsert by url
	item := crawler.Content{
		Title:      "Operators in practice",
		URL:        "https://example.com/post/operators",
		KeyPoints:  []string{"reconcile loops"},
		Tags:       []string{"kubernetes"},
		SourceType: crawler.SourceBlog,
	}
	if err := s.SaveArticle(ctx, item); err != nil {
		t.Fatalf("save article: %v", err)
	}
	item.Title = "Operators in practice, part 2"
	if err := s.SaveArticle(ctx, item); err != nil {
		t.Fatalf("re-save article: %v", err)
	}
	articles, err := s.ListArticles(ctx, "", 0)
	if err != nil {
		t.Fatalf("list articles: %v", err)
	}
	if len(articles) != 1 || articles[0].Title != "Operators in practice, part 2" {
		t.Fatalf("expected the url conflict to update in place, got %+v", articles)
	}

	// reviews
	if err := s.SaveReview(ctx, Review{RunID: runID, Reliability: 0.95, Notes: []string{"verified"}}); err != nil {
		t.Fatalf("save review: %v", err)
	}
	reviews, err := s.ListReviews(ctx, runID)
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Reliability != 0.95 {
		t.Fatalf("unexpected reviews: %+v", reviews)
	}
}
