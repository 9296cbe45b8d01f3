// Package server exposes the blog pipeline over HTTP: auth, run triggering
// and inspection, crawling, archive search and tone analysis, plus the
// scheduler that fires recurring jobs.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/archive"
	"github.com/blogforge/blogforge/internal/crawler"
	"github.com/blogforge/blogforge/internal/pipeline"
	"github.com/blogforge/blogforge/internal/store"
	"github.com/blogforge/blogforge/internal/telemetry"
	"github.com/blogforge/blogforge/internal/tone"
	"github.com/blogforge/blogforge/internal/workspace"
)

// runPipeline is the slice of the orchestrator the handlers and scheduler
// use. Narrow on purpose so tests can substitute a stub.
type runPipeline interface {
	Prepare(topic, toneFile string) (string, error)
	Resume(ctx context.Context, runID string) (*pipeline.RunResult, error)
	Checkpoints() *pipeline.CheckpointStore
	Workspace() *workspace.Manager
}

// crawlRunner triggers one crawl pass over the configured sources.
type crawlRunner interface {
	Run(ctx context.Context, source string) (crawler.Result, error)
}

// Deps carries the shared components the server serves. Store, Crawler and
// Archive may be nil when their features are disabled in config; the
// affected endpoints then answer 503.
type Deps struct {
	Store     store.Store
	Pipeline  runPipeline
	Crawler   crawlRunner
	Archive   *archive.Archive
	Learner   *tone.Learner
	ToneCache *tone.Cache
	Telemetry *telemetry.Telemetry
}

// Server is the HTTP API plus the background scheduler.
type Server struct {
	cfg    *config.Config
	echo   *echo.Echo
	deps   Deps
	sched  *Scheduler
	rdb    *redis.Client
	logger *log.Logger
}

// New wires the echo instance, routes and scheduler. It does not start
// listening; call Start.
func New(cfg *config.Config, deps Deps, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[SERVER] ", log.LstdFlags)
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("server requires a pipeline")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("server requires a store (set store.driver)")
	}
	secret := cfg.Server.JWTSecret
	if secret == "" {
		return nil, fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	httpLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		httpLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")

	auth := &AuthHandler{Store: deps.Store, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	guarded := api.Group("")
	guarded.Use(authMiddleware(auth.Secret))
	guarded.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, MeResponse{UserID: c.Get("user_id").(string)})
	})

	runs := &RunsHandler{Store: deps.Store, Pipeline: deps.Pipeline, Logger: logger}
	runs.Register(guarded.Group("/runs"))

	crawl := &CrawlHandler{Runner: deps.Crawler, Logger: logger}
	crawl.Register(guarded.Group("/crawl"))

	arch := &ArchiveHandler{Archive: deps.Archive}
	arch.Register(guarded.Group("/archive"))

	tn := &ToneHandler{Learner: deps.Learner, Cache: deps.ToneCache}
	tn.Register(guarded.Group("/tone"))

	srv := &Server{cfg: cfg, echo: e, deps: deps, logger: logger}

	if len(cfg.Server.Schedules) > 0 {
		if cfg.Server.Redis.Host != "" {
			srv.rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Server.Redis.Addr(),
				Password: cfg.Server.Redis.Password,
				DB:       cfg.Server.Redis.DB,
			})
			if err := srv.rdb.Ping(context.Background()).Err(); err != nil {
				return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Server.Redis.Addr(), err)
			}
		}
		srv.sched = &Scheduler{
			Schedules: cfg.Server.Schedules,
			Pipeline:  deps.Pipeline,
			Crawler:   deps.Crawler,
			Store:     deps.Store,
			Rdb:       srv.rdb,
			Logger:    log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
			Stop:      make(chan struct{}),
		}
	}

	return srv, nil
}

// Start runs the scheduler and blocks serving HTTP on the configured address.
func (s *Server) Start() error {
	if s.sched != nil {
		s.sched.Start()
	}
	addr := s.cfg.Server.Address
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Printf("listening on %s", addr)
	return s.echo.Start(addr)
}

// Shutdown stops the scheduler and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.sched != nil {
		close(s.sched.Stop)
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for httptest-driven tests.
func (s *Server) Echo() *echo.Echo { return s.echo }
