package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/blogforge/blogforge/config"
)

func enabled() config.TelemetryConfig {
	return config.TelemetryConfig{Enabled: true, CostTracking: true}
}

func TestRecordRunEvent(t *testing.T) {
	tel := New(enabled())

	tel.RecordRunEvent(RunEvent{RunID: "a", Success: true, Duration: 2 * time.Second, Cost: 0.05, TokensUsed: 1000})
	tel.RecordRunEvent(RunEvent{RunID: "b", Success: false, Duration: 4 * time.Second, Cost: 0.01, TokensUsed: 200})

	m := tel.GetMetrics()
	if m.TotalRuns != 2 || m.SuccessfulRuns != 1 || m.FailedRuns != 1 {
		t.Fatalf("unexpected run counters: %+v", m)
	}
	if m.AverageRunTime != 3*time.Second {
		t.Fatalf("expected 3s average, got %v", m.AverageRunTime)
	}

	costs := tel.GetCostSummary()
	if costs.TotalTokens != 1200 {
		t.Fatalf("expected 1200 tokens, got %d", costs.TotalTokens)
	}
	if costs.TotalCost < 0.0599 || costs.TotalCost > 0.0601 {
		t.Fatalf("expected total cost 0.06, got %v", costs.TotalCost)
	}
}

func TestRecordStepEventAggregates(t *testing.T) {
	tel := New(enabled())

	tel.RecordStepEvent(StepEvent{Step: "write", Success: true, Duration: 10 * time.Second, ModelUsed: "fast", TokensUsed: 500, Cost: 0.02})
	tel.RecordStepEvent(StepEvent{Step: "write", Success: false, Duration: 20 * time.Second, ModelUsed: "fast", TokensUsed: 100, Cost: 0.01})

	m := tel.GetMetrics()
	if m.StepExecutions["write"] != 2 {
		t.Fatalf("expected 2 executions, got %d", m.StepExecutions["write"])
	}
	if m.StepSuccessRates["write"] != 0.5 {
		t.Fatalf("expected 0.5 success rate, got %v", m.StepSuccessRates["write"])
	}
	if m.StepAverageTimes["write"] != 15*time.Second {
		t.Fatalf("expected 15s average, got %v", m.StepAverageTimes["write"])
	}
	if m.LLMTokensUsed["fast"] != 600 {
		t.Fatalf("expected 600 tokens for model, got %d", m.LLMTokensUsed["fast"])
	}

	costs := tel.GetCostSummary()
	if costs.StepCosts["write"] < 0.0299 || costs.StepCosts["write"] > 0.0301 {
		t.Fatalf("expected step cost 0.03, got %v", costs.StepCosts["write"])
	}
}

func TestDisabledTelemetryIsSilent(t *testing.T) {
	tel := New(config.TelemetryConfig{Enabled: false})
	tel.RecordRunEvent(RunEvent{RunID: "a", Success: true})
	tel.RecordStepEvent(StepEvent{Step: "plan", Success: true})
	tel.RecordFetchEvent(FetchEvent{Source: "example.com", Success: true})

	m := tel.GetMetrics()
	if m.TotalRuns != 0 || len(m.StepExecutions) != 0 || len(m.FetchRequests) != 0 {
		t.Fatalf("expected no recorded metrics when disabled, got %+v", m)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	tel := New(enabled())
	tel.RecordStepEvent(StepEvent{Step: "plan", Success: true, Duration: time.Second})

	m := tel.GetMetrics()
	m.StepExecutions["plan"] = 99

	if tel.GetMetrics().StepExecutions["plan"] != 1 {
		t.Fatal("mutating the snapshot leaked into internal state")
	}
}

func TestReportContainsStepsAndModels(t *testing.T) {
	tel := New(enabled())
	tel.RecordStepEvent(StepEvent{Step: "review", Success: true, Duration: time.Second, ModelUsed: "fast", TokensUsed: 10, Cost: 0.001})
	tel.RecordRunEvent(RunEvent{RunID: "a", Success: true, Duration: time.Second})

	report := tel.Report()
	for _, want := range []string{"review", "fast", "Runs: 1 total"} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}

func TestFetchEventRates(t *testing.T) {
	tel := New(enabled())
	tel.RecordFetchEvent(FetchEvent{Source: "blog.example.com", Success: true, Duration: time.Second})
	tel.RecordFetchEvent(FetchEvent{Source: "blog.example.com", Success: true, Duration: 3 * time.Second})
	tel.RecordFetchEvent(FetchEvent{Source: "blog.example.com", Success: false, Duration: 2 * time.Second})

	m := tel.GetMetrics()
	if m.FetchRequests["blog.example.com"] != 3 {
		t.Fatalf("expected 3 requests, got %d", m.FetchRequests["blog.example.com"])
	}
	rate := m.FetchSuccessRates["blog.example.com"]
	if rate < 0.666 || rate > 0.667 {
		t.Fatalf("expected 2/3 success rate, got %v", rate)
	}
	if m.FetchAverageTimes["blog.example.com"] != 2*time.Second {
		t.Fatalf("expected 2s average, got %v", m.FetchAverageTimes["blog.example.com"])
	}
}
