package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/agents"
	"github.com/blogforge/blogforge/internal/crawler"
	"github.com/blogforge/blogforge/internal/pipeline"
	"github.com/blogforge/blogforge/internal/store"
	"github.com/blogforge/blogforge/internal/workspace"
)

func discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeStore is an in-memory store.Store for handler tests.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string][2]string // email -> id, password hash
	runs     map[string]store.Run
	reviews  map[string][]store.Review
	articles []store.Article
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string][2]string),
		runs:    make(map[string]store.Run),
		reviews: make(map[string][]store.Review),
	}
}

func (f *fakeStore) CreateUser(ctx context.Context, email, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[email]; ok {
		return store.ErrEmailTaken
	}
	f.users[email] = [2]string{uuid.NewString(), passwordHash}
	return nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return "", "", store.ErrNotFound
	}
	return u[0], u[1], nil
}

func (f *fakeStore) StartRun(ctx context.Context, id, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[id] = store.Run{ID: id, Topic: topic, Status: store.RunStatusRunning, StartedAt: time.Now().UTC()}
	return nil
}

func (f *fakeStore) FinishRun(ctx context.Context, id, status, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = &now
	f.runs[id] = run
	return nil
}

func (f *fakeStore) GetRun(ctx context.Context, id string) (store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

func (f *fakeStore) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Run, 0, len(f.runs))
	for _, run := range f.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) SaveArticle(ctx context.Context, item crawler.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.articles = append(f.articles, store.Article{Title: item.Title, URL: item.URL})
	return nil
}

func (f *fakeStore) ListArticles(ctx context.Context, sourceType string, limit int) ([]store.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Article(nil), f.articles...), nil
}

func (f *fakeStore) SaveReview(ctx context.Context, review store.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews[review.RunID] = append(f.reviews[review.RunID], review)
	return nil
}

func (f *fakeStore) ListReviews(ctx context.Context, runID string) ([]store.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Review(nil), f.reviews[runID]...), nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) runStatus(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok || run.FinishedAt == nil {
		return "", false
	}
	return run.Status, true
}

// fakePipeline satisfies runPipeline with a real checkpoint store and
// workspace on a temp dir, so content endpoints read real artifacts.
type fakePipeline struct {
	checkpoints *pipeline.CheckpointStore
	ws          *workspace.Manager
	resumeErr   error
	report      agents.ReviewReport
	resumed     chan string
}

func newFakePipeline(t *testing.T) *fakePipeline {
	t.Helper()
	ws, err := workspace.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	cps, err := pipeline.NewCheckpointStore(ws.Root())
	if err != nil {
		t.Fatalf("new checkpoint store: %v", err)
	}
	return &fakePipeline{checkpoints: cps, ws: ws, resumed: make(chan string, 8)}
}

func (f *fakePipeline) Prepare(topic, toneFile string) (string, error) {
	cp := &pipeline.Checkpoint{RunID: uuid.NewString(), Topic: topic, CurrentStep: pipeline.StatusPending}
	if err := f.checkpoints.Save(cp); err != nil {
		return "", err
	}
	return cp.RunID, nil
}

func (f *fakePipeline) Resume(ctx context.Context, runID string) (*pipeline.RunResult, error) {
	defer func() { f.resumed <- runID }()
	if f.resumeErr != nil {
		return nil, f.resumeErr
	}
	return &pipeline.RunResult{RunID: runID, Report: f.report}, nil
}

func (f *fakePipeline) Checkpoints() *pipeline.CheckpointStore { return f.checkpoints }

func (f *fakePipeline) Workspace() *workspace.Manager { return f.ws }

type fakeCrawler struct {
	sources chan string
	err     error
}

func (f *fakeCrawler) Run(ctx context.Context, source string) (crawler.Result, error) {
	f.sources <- source
	if f.err != nil {
		return crawler.Result{}, f.err
	}
	return crawler.Result{Crawled: 1, Accepted: 1}, nil
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.JWTSecret = "test-secret"
	srv, err := New(cfg, deps, discard())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, client *http.Client, url, token string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s failed: %v", url, err)
	}
	return res
}

func getWithToken(t *testing.T, client *http.Client, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s failed: %v", url, err)
	}
	return res
}

// signupAndLogin registers a user and returns a bearer token.
func signupAndLogin(t *testing.T, client *http.Client, baseURL string) string {
	t.Helper()
	creds := map[string]string{"email": "dev@example.com", "password": "verysecure"}
	res := postJSON(t, client, baseURL+"/api/auth/signup", "", creds)
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for signup, got %d", res.StatusCode)
	}
	res = postJSON(t, client, baseURL+"/api/auth/login", "", creds)
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for login, got %d", res.StatusCode)
	}
	var tok TokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if tok.Token == "" {
		t.Fatal("expected a token in the login response")
	}
	return tok.Token
}

func TestNewRequiresJWTSecret(t *testing.T) {
	cfg := &config.Config{}
	_, err := New(cfg, Deps{Store: newFakeStore(), Pipeline: newFakePipeline(t)}, discard())
	if err == nil {
		t.Fatal("expected an error for a missing jwt secret")
	}
}

func TestSignupLoginFlow(t *testing.T) {
	ts := newTestServer(t, Deps{Store: newFakeStore(), Pipeline: newFakePipeline(t)})
	client := &http.Client{Timeout: 10 * time.Second}
	creds := map[string]string{"email": "dev@example.com", "password": "verysecure"}

	res := postJSON(t, client, ts.URL+"/api/auth/signup", "", creds)
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for signup, got %d", res.StatusCode)
	}

	res = postJSON(t, client, ts.URL+"/api/auth/signup", "", creds)
	res.Body.Close()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for a duplicate signup, got %d", res.StatusCode)
	}

	res = postJSON(t, client, ts.URL+"/api/auth/login", "", creds)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for login, got %d", res.StatusCode)
	}
	var tok TokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	res.Body.Close()
	if tok.Token == "" {
		t.Fatal("expected a token in the login response")
	}
	var authCookie bool
	for _, ck := range res.Cookies() {
		if ck.Name == "auth" && ck.Value != "" && ck.HttpOnly {
			authCookie = true
		}
	}
	if !authCookie {
		t.Fatal("expected an httponly auth cookie")
	}

	res = postJSON(t, client, ts.URL+"/api/auth/login", "", map[string]string{"email": "dev@example.com", "password": "wrongpassword"})
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad password, got %d", res.StatusCode)
	}

	res = getWithToken(t, client, ts.URL+"/api/me", tok.Token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for /api/me with token, got %d", res.StatusCode)
	}
	var me MeResponse
	if err := json.NewDecoder(res.Body).Decode(&me); err != nil {
		t.Fatalf("decode me response: %v", err)
	}
	res.Body.Close()
	if me.UserID == "" {
		t.Fatal("expected a user id")
	}

	res = getWithToken(t, client, ts.URL+"/api/me", "")
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", res.StatusCode)
	}
}

func TestAuthMiddlewareRejectsForgedToken(t *testing.T) {
	ts := newTestServer(t, Deps{Store: newFakeStore(), Pipeline: newFakePipeline(t)})
	client := &http.Client{Timeout: 10 * time.Second}

	forged, err := signJWT("someone", []byte("other-secret"), time.Hour)
	if err != nil {
		t.Fatalf("sign forged token: %v", err)
	}
	res := getWithToken(t, client, ts.URL+"/api/me", forged)
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a forged token, got %d", res.StatusCode)
	}
}

func waitForStatus(t *testing.T, st *fakeStore, runID, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if status, done := st.runStatus(runID); done {
			if status != want {
				t.Fatalf("expected run status %s, got %s", want, status)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for run %s to finish", runID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTriggerRunRecordsLifecycle(t *testing.T) {
	st := newFakeStore()
	fp := newFakePipeline(t)
	fp.report = agents.ReviewReport{
		ReliabilityScore: 0.9,
		ToneMatchScore:   0.8,
		Corrections:      []string{"fixed a date"},
		ReliabilityNotes: []string{"sources check out"},
	}
	ts := newTestServer(t, Deps{Store: st, Pipeline: fp})
	client := &http.Client{Timeout: 10 * time.Second}
	token := signupAndLogin(t, client, ts.URL)

	res := postJSON(t, client, ts.URL+"/api/runs", "", GenerateRequest{Topic: "go generics"})
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", res.StatusCode)
	}

	res = postJSON(t, client, ts.URL+"/api/runs", token, GenerateRequest{})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing topic, got %d", res.StatusCode)
	}

	res = postJSON(t, client, ts.URL+"/api/runs", token, GenerateRequest{Topic: "go generics"})
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for trigger, got %d", res.StatusCode)
	}
	var accepted IDResponse
	if err := json.NewDecoder(res.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode trigger response: %v", err)
	}
	res.Body.Close()
	if accepted.ID == "" {
		t.Fatal("expected a run id")
	}

	select {
	case got := <-fp.resumed:
		if got != accepted.ID {
			t.Fatalf("expected resume of %s, got %s", accepted.ID, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the pipeline to run")
	}
	waitForStatus(t, st, accepted.ID, store.RunStatusCompleted)

	reviews, err := st.ListReviews(context.Background(), accepted.ID)
	if err != nil || len(reviews) != 1 {
		t.Fatalf("expected 1 review, got %v / %v", reviews, err)
	}
	if reviews[0].Reliability != 0.9 || reviews[0].Corrections != 1 {
		t.Fatalf("unexpected review: %+v", reviews[0])
	}
}

func TestTriggerRunRecordsFailure(t *testing.T) {
	st := newFakeStore()
	fp := newFakePipeline(t)
	fp.resumeErr = fmt.Errorf("step write: model unavailable")
	ts := newTestServer(t, Deps{Store: st, Pipeline: fp})
	client := &http.Client{Timeout: 10 * time.Second}
	token := signupAndLogin(t, client, ts.URL)

	res := postJSON(t, client, ts.URL+"/api/runs", token, GenerateRequest{Topic: "container security"})
	var accepted IDResponse
	if err := json.NewDecoder(res.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode trigger response: %v", err)
	}
	res.Body.Close()

	waitForStatus(t, st, accepted.ID, store.RunStatusFailed)
	run, err := st.GetRun(context.Background(), accepted.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Error != "step write: model unavailable" {
		t.Fatalf("expected the failure message to be recorded, got %q", run.Error)
	}
}
