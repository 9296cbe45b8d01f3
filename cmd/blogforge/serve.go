package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blogforge/blogforge/internal/archive"
	"github.com/blogforge/blogforge/internal/server"
	"github.com/blogforge/blogforge/internal/store"
	"github.com/blogforge/blogforge/internal/telemetry"
	"github.com/blogforge/blogforge/internal/tone"
)

func serveCMD() *cobra.Command {
	var addr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}

			logger := newLogger(cfg, "[SERVER] ")
			tel := telemetry.New(cfg.Telemetry)
			defer tel.Shutdown()

			orch, provider, err := buildPipeline(cfg, tel, logger)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			st, err := store.Open(ctx, cfg.Store, logger)
			if err != nil {
				return err
			}
			if st == nil {
				return errors.New("serve needs a run store (set store.driver)")
			}
			defer st.Close()

			var arch *archive.Archive
			if cfg.Archive.Enabled {
				arch, err = archive.Open(cfg.Archive.Path, logger)
				if err != nil {
					return err
				}
				defer arch.Close()
			}

			toneCache, err := tone.NewCache(cfg.Tone.CacheDir, logger)
			if err != nil {
				return err
			}

			deps := server.Deps{
				Store:     st,
				Pipeline:  orch,
				Crawler:   buildCrawler(cfg, provider, tel, arch, st, true, logger),
				Archive:   arch,
				Learner:   tone.NewLearner(provider, cfg.LLM.Routing.Model("analysis"), logger),
				ToneCache: toneCache,
				Telemetry: tel,
			}
			srv, err := server.New(cfg, deps, logger)
			if err != nil {
				return err
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
				defer stop()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Printf("WARN: shutdown: %v", err)
				}
			}()

			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Printf("bye")
			return nil
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")

	return serve
}
