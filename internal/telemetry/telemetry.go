// Package telemetry tracks run, step, LLM and fetch metrics together with
// token cost accounting. Counters are mirrored into Prometheus collectors so
// the serve command can expose them at /metrics.
package telemetry

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/blogforge/blogforge/config"
)

// Telemetry aggregates pipeline monitoring and cost tracking.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	mu          sync.RWMutex
}

// Metrics holds performance counters for runs, steps, models and fetches.
type Metrics struct {
	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64
	AverageRunTime time.Duration

	StepExecutions   map[string]int64
	StepSuccessRates map[string]float64
	StepAverageTimes map[string]time.Duration

	LLMRequests   map[string]int64
	LLMTokensUsed map[string]int64

	FetchRequests     map[string]int64
	FetchSuccessRates map[string]float64
	FetchAverageTimes map[string]time.Duration
}

// CostTracker accumulates dollar costs across models and pipeline steps.
type CostTracker struct {
	StepCosts   map[string]float64
	ModelCosts  map[string]float64
	TotalCost   float64
	TotalTokens int64
}

// RunEvent describes one finished pipeline run.
type RunEvent struct {
	RunID      string
	Topic      string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	StepsRun   []string
	ModelsUsed []string
}

// StepEvent describes one pipeline step execution.
type StepEvent struct {
	RunID      string
	Step       string
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	ModelUsed  string
}

// FetchEvent describes one source fetch, keyed by host.
type FetchEvent struct {
	Source   string
	Duration time.Duration
	Success  bool
	Results  int
}

// New creates a telemetry instance. Periodic snapshot logging starts only
// when both Enabled and PeriodicLogs are set.
func New(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			StepExecutions:    make(map[string]int64),
			StepSuccessRates:  make(map[string]float64),
			StepAverageTimes:  make(map[string]time.Duration),
			LLMRequests:       make(map[string]int64),
			LLMTokensUsed:     make(map[string]int64),
			FetchRequests:     make(map[string]int64),
			FetchSuccessRates: make(map[string]float64),
			FetchAverageTimes: make(map[string]time.Duration),
		},
		costTracker: &CostTracker{
			StepCosts:  make(map[string]float64),
			ModelCosts: make(map[string]float64),
		},
	}

	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startSnapshotLogging()
	}

	return t
}

// RecordRunEvent records one complete pipeline run.
func (t *Telemetry) RecordRunEvent(event RunEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRuns++
	status := "success"
	if event.Success {
		t.metrics.SuccessfulRuns++
	} else {
		t.metrics.FailedRuns++
		status = "failure"
	}

	if t.metrics.TotalRuns == 1 {
		t.metrics.AverageRunTime = event.Duration
	} else {
		total := t.metrics.AverageRunTime * time.Duration(t.metrics.TotalRuns-1)
		t.metrics.AverageRunTime = (total + event.Duration) / time.Duration(t.metrics.TotalRuns)
	}

	for _, model := range event.ModelsUsed {
		t.metrics.LLMRequests[model]++
	}

	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed

	runsTotal.WithLabelValues(status).Inc()
	runDuration.Observe(event.Duration.Seconds())

	t.logger.Printf("Run Event: ID=%s, Topic=%q, Success=%t, Duration=%v, Cost=$%.4f, Tokens=%d",
		event.RunID, event.Topic, event.Success, event.Duration, event.Cost, event.TokensUsed)
}

// RecordStepEvent records one pipeline step execution.
func (t *Telemetry) RecordStepEvent(event StepEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.StepExecutions[event.Step]++

	successes := t.metrics.StepSuccessRates[event.Step] * float64(t.metrics.StepExecutions[event.Step]-1)
	if event.Success {
		successes += 1.0
	}
	t.metrics.StepSuccessRates[event.Step] = successes / float64(t.metrics.StepExecutions[event.Step])

	executions := t.metrics.StepExecutions[event.Step]
	if executions == 1 {
		t.metrics.StepAverageTimes[event.Step] = event.Duration
	} else {
		total := t.metrics.StepAverageTimes[event.Step] * time.Duration(executions-1)
		t.metrics.StepAverageTimes[event.Step] = (total + event.Duration) / time.Duration(executions)
	}

	if event.ModelUsed != "" {
		t.metrics.LLMRequests[event.ModelUsed]++
		t.metrics.LLMTokensUsed[event.ModelUsed] += event.TokensUsed
		t.costTracker.ModelCosts[event.ModelUsed] += event.Cost
		llmTokensTotal.WithLabelValues(event.ModelUsed).Add(float64(event.TokensUsed))
		llmCostTotal.WithLabelValues(event.ModelUsed).Add(event.Cost)
	}

	if t.config.CostTracking {
		t.costTracker.StepCosts[event.Step] += event.Cost
	}
	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed

	stepDuration.WithLabelValues(event.Step).Observe(event.Duration.Seconds())

	t.logger.Printf("Step Event: Run=%s, Step=%s, Success=%t, Duration=%v, Cost=$%.4f",
		event.RunID, event.Step, event.Success, event.Duration, event.Cost)
}

// RecordFetchEvent records one source fetch.
func (t *Telemetry) RecordFetchEvent(event FetchEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.FetchRequests[event.Source]++

	successes := t.metrics.FetchSuccessRates[event.Source] * float64(t.metrics.FetchRequests[event.Source]-1)
	status := "success"
	if event.Success {
		successes += 1.0
	} else {
		status = "failure"
	}
	t.metrics.FetchSuccessRates[event.Source] = successes / float64(t.metrics.FetchRequests[event.Source])

	requests := t.metrics.FetchRequests[event.Source]
	if requests == 1 {
		t.metrics.FetchAverageTimes[event.Source] = event.Duration
	} else {
		total := t.metrics.FetchAverageTimes[event.Source] * time.Duration(requests-1)
		t.metrics.FetchAverageTimes[event.Source] = (total + event.Duration) / time.Duration(requests)
	}

	fetchesTotal.WithLabelValues(status).Inc()
}

// RecordCrawlItem counts one crawled item per source and filter outcome.
func (t *Telemetry) RecordCrawlItem(source string, accepted bool) {
	if !t.config.Enabled {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	crawlItemsTotal.WithLabelValues(source, outcome).Inc()
}

// GetMetrics returns a copy of the current metrics.
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := *t.metrics
	metrics.StepExecutions = copyMap(t.metrics.StepExecutions)
	metrics.StepSuccessRates = copyMap(t.metrics.StepSuccessRates)
	metrics.StepAverageTimes = copyMap(t.metrics.StepAverageTimes)
	metrics.LLMRequests = copyMap(t.metrics.LLMRequests)
	metrics.LLMTokensUsed = copyMap(t.metrics.LLMTokensUsed)
	metrics.FetchRequests = copyMap(t.metrics.FetchRequests)
	metrics.FetchSuccessRates = copyMap(t.metrics.FetchSuccessRates)
	metrics.FetchAverageTimes = copyMap(t.metrics.FetchAverageTimes)
	return metrics
}

// GetCostSummary returns a copy of the accumulated costs.
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return CostSummary{
		TotalCost:   t.costTracker.TotalCost,
		TotalTokens: t.costTracker.TotalTokens,
		StepCosts:   copyMap(t.costTracker.StepCosts),
		ModelCosts:  copyMap(t.costTracker.ModelCosts),
	}
}

// CostSummary is a point-in-time view of accumulated costs.
type CostSummary struct {
	TotalCost   float64
	TotalTokens int64
	StepCosts   map[string]float64
	ModelCosts  map[string]float64
}

func copyMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (t *Telemetry) startSnapshotLogging() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		metrics := t.GetMetrics()
		costs := t.GetCostSummary()
		t.logger.Printf("Metrics Snapshot: Runs=%d/%d, AvgTime=%v, TotalCost=$%.4f, TotalTokens=%d",
			metrics.SuccessfulRuns, metrics.TotalRuns,
			metrics.AverageRunTime, costs.TotalCost, costs.TotalTokens)
	}
}

// Report renders a human-readable summary for the runs CLI.
func (t *Telemetry) Report() string {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	report := fmt.Sprintf(`=== PIPELINE REPORT ===
Runs: %d total, %d succeeded, %d failed
Average Run Time: %v
Total Cost: $%.4f
Total Tokens: %d

Step Performance:
`, metrics.TotalRuns, metrics.SuccessfulRuns, metrics.FailedRuns,
		metrics.AverageRunTime, costs.TotalCost, costs.TotalTokens)

	for step, executions := range metrics.StepExecutions {
		report += fmt.Sprintf("  %s: %d executions, %.2f%% success, %v avg time\n",
			step, executions, metrics.StepSuccessRates[step]*100, metrics.StepAverageTimes[step])
	}

	report += "\nModel Usage:\n"
	for model, requests := range metrics.LLMRequests {
		report += fmt.Sprintf("  %s: %d requests, %d tokens, $%.4f\n",
			model, requests, metrics.LLMTokensUsed[model], costs.ModelCosts[model])
	}

	return report
}

// Shutdown logs a final summary.
func (t *Telemetry) Shutdown() {
	if !t.config.Enabled {
		return
	}
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()
	t.logger.Printf("Final Report: Runs=%d, Failed=%d, AvgTime=%v, Cost=$%.4f, Tokens=%d",
		metrics.TotalRuns, metrics.FailedRuns, metrics.AverageRunTime, costs.TotalCost, costs.TotalTokens)
}
