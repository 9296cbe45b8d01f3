package main

import (
	"log"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/archive"
	"github.com/blogforge/blogforge/internal/crawler"
	"github.com/blogforge/blogforge/internal/filter"
	"github.com/blogforge/blogforge/internal/llm"
	"github.com/blogforge/blogforge/internal/notion"
	"github.com/blogforge/blogforge/internal/pipeline"
	"github.com/blogforge/blogforge/internal/search"
	"github.com/blogforge/blogforge/internal/store"
	"github.com/blogforge/blogforge/internal/summarize"
	"github.com/blogforge/blogforge/internal/telemetry"
)

// buildPipeline assembles the orchestrator with its LLM and search providers.
func buildPipeline(cfg *config.Config, tel *telemetry.Telemetry, logger *log.Logger) (*pipeline.Orchestrator, llm.Provider, error) {
	provider, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return nil, nil, err
	}
	searcher, err := search.New(cfg.Search, provider, cfg.LLM.Routing.Model("search"), logger)
	if err != nil {
		return nil, nil, err
	}
	orch, err := pipeline.NewOrchestrator(cfg, provider, searcher, tel, logger)
	if err != nil {
		return nil, nil, err
	}
	return orch, provider, nil
}

// buildCrawler assembles a crawl runner with every sink the configuration
// enables. provider, arch and st may be nil; forward disables the Notion sink
// regardless of config (the --dry-run path).
func buildCrawler(cfg *config.Config, provider llm.Provider, tel *telemetry.Telemetry, arch *archive.Archive, st store.Store, forward bool, logger *log.Logger) *crawler.Runner {
	client := crawler.NewClient(cfg.Crawler, logger)
	run := &crawler.Runner{
		Blogs:     crawler.NewBlogCrawler(client, cfg.Crawler, logger),
		Filters:   filter.NewChain(cfg.Crawler.Filters, logger),
		Telemetry: tel,
		Logger:    logger,
	}
	if cfg.Crawler.YouTube.APIKey != "" {
		run.YouTube = crawler.NewYouTubeCrawler(client, cfg.Crawler.YouTube, logger)
	}
	if provider != nil {
		run.Summarizer = summarize.New(provider, cfg.LLM.Routing.Model("summarize"), cfg.Summarizer, logger)
	}
	if forward && cfg.Notion.Enabled {
		run.Forwarder = notion.NewClient(cfg.Notion, logger)
	}
	if arch != nil {
		run.Archiver = arch
	}
	if st != nil {
		run.Recorder = st
	}
	return run
}
