package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors registered on the default registry, served by promhttp at
// /metrics in serve mode.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogforge_runs_total",
		Help: "Pipeline runs by final status.",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blogforge_run_duration_seconds",
		Help:    "End-to-end pipeline run duration.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blogforge_step_duration_seconds",
		Help:    "Pipeline step duration by step name.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"step"})

	llmTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogforge_llm_tokens_total",
		Help: "Tokens consumed by model.",
	}, []string{"model"})

	llmCostTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogforge_llm_cost_dollars_total",
		Help: "Estimated dollar cost by model.",
	}, []string{"model"})

	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogforge_fetches_total",
		Help: "Article fetches by outcome.",
	}, []string{"status"})

	crawlItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogforge_crawl_items_total",
		Help: "Crawled items by source and filter outcome.",
	}, []string{"source", "outcome"})
)
