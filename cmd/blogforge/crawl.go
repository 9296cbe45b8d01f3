package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blogforge/blogforge/internal/archive"
	"github.com/blogforge/blogforge/internal/crawler"
	"github.com/blogforge/blogforge/internal/llm"
	"github.com/blogforge/blogforge/internal/store"
	"github.com/blogforge/blogforge/internal/telemetry"
)

func crawlCMD() *cobra.Command {
	var (
		source string
		dryRun bool
	)

	var crawl = &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl pass over the configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch source {
			case crawler.SourceAll, crawler.SourceBlog, crawler.SourceYouTube:
			default:
				return fmt.Errorf("source must be blog, youtube or all, got %q", source)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger := newLogger(cfg, "[CRAWLER] ")
			tel := telemetry.New(cfg.Telemetry)
			defer tel.Shutdown()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// The pass degrades without an LLM: items stay unsummarized but
			// still flow through filters and sinks.
			provider, err := llm.New(cfg.LLM, logger)
			if err != nil {
				logger.Printf("WARN: summarizer disabled: %v", err)
				provider = nil
			}

			var arch *archive.Archive
			if cfg.Archive.Enabled {
				arch, err = archive.Open(cfg.Archive.Path, logger)
				if err != nil {
					return err
				}
				defer arch.Close()
			}
			st, err := store.Open(ctx, cfg.Store, logger)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			run := buildCrawler(cfg, provider, tel, arch, st, !dryRun, logger)
			result, err := run.Run(ctx, source)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "crawled %d items: %d accepted, %d rejected, %d errors\n",
				result.Crawled, result.Accepted, result.Rejected, result.Errors)
			if result.Forwarded > 0 || result.Archived > 0 {
				fmt.Fprintf(out, "forwarded %d, archived %d\n", result.Forwarded, result.Archived)
			}
			return nil
		},
	}
	crawl.Flags().StringVar(&source, "source", crawler.SourceAll, "source to crawl (blog, youtube or all)")
	crawl.Flags().BoolVar(&dryRun, "dry-run", false, "skip forwarding to Notion")

	return crawl
}
