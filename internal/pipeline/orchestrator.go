package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/agents"
	"github.com/blogforge/blogforge/internal/fetch"
	"github.com/blogforge/blogforge/internal/llm"
	"github.com/blogforge/blogforge/internal/search"
	"github.com/blogforge/blogforge/internal/telemetry"
	"github.com/blogforge/blogforge/internal/tone"
	"github.com/blogforge/blogforge/internal/workspace"
)

// Step names in their fixed execution order.
const (
	StepSearch = "search"
	StepPlan   = "plan"
	StepWrite  = "write"
	StepReview = "review"
)

// Terminal checkpoint states.
const (
	StatusPending   = "pending"
	StatusFailed    = "failed"
	StatusCompleted = "completed"
)

// StepOrder is the canonical sequence of pipeline steps.
var StepOrder = []string{StepSearch, StepPlan, StepWrite, StepReview}

// Orchestrator runs the blog pipeline step by step, checkpointing every
// transition. Steps communicate only through persisted workspace artifacts,
// which is what makes a run resumable after a process restart.
type Orchestrator struct {
	cfg         *config.Config
	ws          *workspace.Manager
	checkpoints *CheckpointStore
	toneCache   *tone.Cache
	learner     *tone.Learner
	searcher    *agents.Searcher
	planner     *agents.Planner
	writer      *agents.Writer
	reviewer    *agents.Reviewer
	tel         *telemetry.Telemetry
	logger      *log.Logger
	lockDir     string
}

// RunResult summarizes a finished run.
type RunResult struct {
	RunID     string
	Topic     string
	OutputDir string
	Metadata  agents.BlogMetadata
	Report    agents.ReviewReport
	Duration  time.Duration
	Tokens    int64
	Cost      float64
}

// NewOrchestrator wires the agents, workspace and checkpoint store.
func NewOrchestrator(cfg *config.Config, provider llm.Provider, searchProvider search.Provider, tel *telemetry.Telemetry, logger *log.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}

	ws, err := workspace.NewManager(cfg.Workspace.Dir)
	if err != nil {
		return nil, err
	}
	checkpoints, err := NewCheckpointStore(ws.Root())
	if err != nil {
		return nil, err
	}
	toneCache, err := tone.NewCache(cfg.Tone.CacheDir, logger)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.New(cfg.Fetcher, tel, logger)
	return &Orchestrator{
		cfg:         cfg,
		ws:          ws,
		checkpoints: checkpoints,
		toneCache:   toneCache,
		learner:     tone.NewLearner(provider, cfg.LLM.Routing.Model("analysis"), logger),
		searcher:    agents.NewSearcher(provider, searchProvider, fetcher, cfg, logger),
		planner:     agents.NewPlanner(provider, cfg, logger),
		writer:      agents.NewWriter(provider, cfg, logger),
		reviewer:    agents.NewReviewer(provider, cfg, logger),
		tel:         tel,
		logger:      logger,
		lockDir:     filepath.Join(ws.Root(), "locks"),
	}, nil
}

// Checkpoints exposes the store for listing and inspection commands.
func (o *Orchestrator) Checkpoints() *CheckpointStore { return o.checkpoints }

// Workspace exposes the artifact manager.
func (o *Orchestrator) Workspace() *workspace.Manager { return o.ws }

// Prepare registers a pending run and returns its id without executing any
// step. Callers that need the id before the run finishes (the HTTP trigger
// endpoint, the scheduler) pair this with Resume.
func (o *Orchestrator) Prepare(topic, toneFile string) (string, error) {
	cp, err := o.prepare(topic, toneFile)
	if err != nil {
		return "", err
	}
	return cp.RunID, nil
}

// Start begins a fresh run for a topic. toneFile optionally points at a
// reference document whose voice the draft should match.
func (o *Orchestrator) Start(ctx context.Context, topic, toneFile string) (*RunResult, error) {
	cp, err := o.prepare(topic, toneFile)
	if err != nil {
		return nil, err
	}
	o.logger.Printf("starting run %s for topic %q", cp.RunID, topic)
	return o.run(ctx, cp)
}

func (o *Orchestrator) prepare(topic, toneFile string) (*Checkpoint, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("topic is required")
	}
	cp := &Checkpoint{
		RunID:       uuid.NewString(),
		Topic:       topic,
		CurrentStep: StatusPending,
		Artifacts:   make(map[string]string),
		Metadata:    make(map[string]string),
	}
	if toneFile != "" {
		cp.Metadata["tone_file"] = toneFile
	}
	if err := o.checkpoints.Save(cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// RunStep executes one named step of an existing run, re-running it if it
// already completed. Every earlier step must be complete because steps read
// the artifacts their predecessors persisted.
func (o *Orchestrator) RunStep(ctx context.Context, runID, step string) (*RunResult, error) {
	fns := map[string]func(context.Context, *Checkpoint) (agents.StepUsage, error){
		StepSearch: o.stepSearch,
		StepPlan:   o.stepPlan,
		StepWrite:  o.stepWrite,
		StepReview: o.stepReview,
	}
	fn, ok := fns[step]
	if !ok {
		return nil, fmt.Errorf("unknown step %q (valid: %s)", step, strings.Join(StepOrder, ", "))
	}

	cp, err := o.checkpoints.Load(runID)
	if err != nil {
		return nil, err
	}
	if cp.Artifacts == nil {
		cp.Artifacts = make(map[string]string)
	}
	if cp.Metadata == nil {
		cp.Metadata = make(map[string]string)
	}
	for _, name := range StepOrder {
		if name == step {
			break
		}
		if !cp.Completed(name) {
			return nil, fmt.Errorf("step %s needs step %s to run first", step, name)
		}
	}

	lock, err := acquireRunLock(o.lockDir, runID)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	delete(cp.Metadata, "error")
	cp.CurrentStep = step
	if err := o.checkpoints.Save(cp); err != nil {
		return nil, err
	}

	o.logger.Printf("run %s: step %s (single)", runID, step)
	start := time.Now()
	usage, err := fn(ctx, cp)
	o.recordStep(runID, step, usage, time.Since(start), err)
	if err != nil {
		cp.CurrentStep = StatusFailed
		cp.Metadata["error"] = err.Error()
		if saveErr := o.checkpoints.Save(cp); saveErr != nil {
			o.logger.Printf("WARN: persist failed state for %s: %v", runID, saveErr)
		}
		return nil, fmt.Errorf("step %s: %w", step, err)
	}

	cp.MarkCompleted(step)
	cp.CurrentStep = StatusPending
	allDone := true
	for _, name := range StepOrder {
		if !cp.Completed(name) {
			allDone = false
			break
		}
	}
	if allDone {
		cp.CurrentStep = StatusCompleted
	}
	if err := o.checkpoints.Save(cp); err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:    runID,
		Topic:    cp.Topic,
		Duration: time.Since(start),
		Tokens:   usage.Tokens,
		Cost:     usage.Cost,
	}
	if dir, err := o.ws.RunDir(runID); err == nil {
		result.OutputDir = dir
	}
	_ = o.ws.LoadJSON(runID, workspace.BlogMetadataFile, &result.Metadata)
	_ = o.ws.LoadJSON(runID, workspace.ReviewReportFile, &result.Report)
	return result, nil
}

// Resume continues a prior run, skipping its completed steps.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*RunResult, error) {
	cp, err := o.checkpoints.Load(runID)
	if err != nil {
		return nil, err
	}
	if cp.CurrentStep == StatusCompleted {
		return nil, fmt.Errorf("run %s is already completed", runID)
	}
	if cp.Artifacts == nil {
		cp.Artifacts = make(map[string]string)
	}
	if cp.Metadata == nil {
		cp.Metadata = make(map[string]string)
	}
	delete(cp.Metadata, "error")
	o.logger.Printf("resuming run %s (completed: %v)", runID, cp.CompletedSteps)
	return o.run(ctx, cp)
}

func (o *Orchestrator) run(ctx context.Context, cp *Checkpoint) (*RunResult, error) {
	lock, err := acquireRunLock(o.lockDir, cp.RunID)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	steps := []struct {
		name string
		fn   func(context.Context, *Checkpoint) (agents.StepUsage, error)
	}{
		{StepSearch, o.stepSearch},
		{StepPlan, o.stepPlan},
		{StepWrite, o.stepWrite},
		{StepReview, o.stepReview},
	}

	runStart := time.Now()
	var totalTokens int64
	var totalCost float64

	for _, step := range steps {
		if cp.Completed(step.name) {
			o.logger.Printf("run %s: skipping completed step %s", cp.RunID, step.name)
			continue
		}

		cp.CurrentStep = step.name
		if err := o.checkpoints.Save(cp); err != nil {
			return nil, err
		}

		o.logger.Printf("run %s: step %s", cp.RunID, step.name)
		stepStart := time.Now()
		usage, err := step.fn(ctx, cp)
		totalTokens += usage.Tokens
		totalCost += usage.Cost
		o.recordStep(cp.RunID, step.name, usage, time.Since(stepStart), err)

		if err != nil {
			cp.CurrentStep = StatusFailed
			cp.Metadata["error"] = err.Error()
			if saveErr := o.checkpoints.Save(cp); saveErr != nil {
				o.logger.Printf("WARN: persist failed state for %s: %v", cp.RunID, saveErr)
			}
			o.recordRun(cp, time.Since(runStart), totalTokens, totalCost, false, err)
			return nil, fmt.Errorf("step %s: %w", step.name, err)
		}

		cp.MarkCompleted(step.name)
		if err := o.checkpoints.Save(cp); err != nil {
			return nil, err
		}
	}

	cp.CurrentStep = StatusCompleted
	if err := o.checkpoints.Save(cp); err != nil {
		return nil, err
	}
	o.recordRun(cp, time.Since(runStart), totalTokens, totalCost, true, nil)

	result := &RunResult{
		RunID:    cp.RunID,
		Topic:    cp.Topic,
		Duration: time.Since(runStart),
		Tokens:   totalTokens,
		Cost:     totalCost,
	}
	if dir, err := o.ws.RunDir(cp.RunID); err == nil {
		result.OutputDir = dir
	}
	// Best-effort enrichment from the persisted artifacts.
	_ = o.ws.LoadJSON(cp.RunID, workspace.BlogMetadataFile, &result.Metadata)
	_ = o.ws.LoadJSON(cp.RunID, workspace.ReviewReportFile, &result.Report)

	o.logger.Printf("run %s completed in %s ($%.4f, %d tokens)", cp.RunID, result.Duration.Round(time.Millisecond), totalCost, totalTokens)
	return result, nil
}

// searchArtifact is the persisted shape of the search step's output.
type searchArtifact struct {
	Query     string       `json:"query"`
	Articles  []fetch.Item `json:"articles"`
	FetchedAt time.Time    `json:"fetched_at"`
}

func (o *Orchestrator) stepSearch(ctx context.Context, cp *Checkpoint) (agents.StepUsage, error) {
	items, usage, err := o.searcher.Search(ctx, cp.Topic)
	if err != nil {
		return usage, err
	}
	artifact := searchArtifact{Query: cp.Topic, Articles: items, FetchedAt: time.Now().UTC()}
	if err := o.ws.SaveJSON(cp.RunID, workspace.SearchResultsFile, artifact); err != nil {
		return usage, err
	}
	cp.Artifacts[StepSearch] = workspace.SearchResultsFile
	return usage, nil
}

func (o *Orchestrator) stepPlan(ctx context.Context, cp *Checkpoint) (agents.StepUsage, error) {
	var sources searchArtifact
	if err := o.ws.LoadJSON(cp.RunID, workspace.SearchResultsFile, &sources); err != nil {
		return agents.StepUsage{}, err
	}

	plan, usage, err := o.planner.Plan(ctx, cp.Topic, sources.Articles)
	if err != nil {
		return usage, err
	}
	if err := o.ws.SaveJSON(cp.RunID, workspace.BlogPlanFile, plan); err != nil {
		return usage, err
	}
	cp.Artifacts[StepPlan] = workspace.BlogPlanFile
	return usage, nil
}

func (o *Orchestrator) stepWrite(ctx context.Context, cp *Checkpoint) (agents.StepUsage, error) {
	var plan agents.Plan
	if err := o.ws.LoadJSON(cp.RunID, workspace.BlogPlanFile, &plan); err != nil {
		return agents.StepUsage{}, err
	}
	var sources searchArtifact
	if err := o.ws.LoadJSON(cp.RunID, workspace.SearchResultsFile, &sources); err != nil {
		return agents.StepUsage{}, err
	}

	profile, err := o.loadToneProfile(ctx, cp)
	if err != nil {
		return agents.StepUsage{}, err
	}

	draft, usage, err := o.writer.Write(ctx, plan, sources.Articles, profile)
	if err != nil {
		return usage, err
	}
	if err := o.ws.SaveText(cp.RunID, workspace.BlogContentFile, draft.Markdown); err != nil {
		return usage, err
	}
	if err := o.ws.SaveJSON(cp.RunID, workspace.BlogMetadataFile, draft.Metadata); err != nil {
		return usage, err
	}
	cp.Artifacts[StepWrite] = workspace.BlogContentFile
	return usage, nil
}

func (o *Orchestrator) stepReview(ctx context.Context, cp *Checkpoint) (agents.StepUsage, error) {
	content, err := o.ws.LoadText(cp.RunID, workspace.BlogContentFile)
	if err != nil {
		return agents.StepUsage{}, err
	}
	var plan agents.Plan
	if err := o.ws.LoadJSON(cp.RunID, workspace.BlogPlanFile, &plan); err != nil {
		return agents.StepUsage{}, err
	}

	profile, err := o.loadToneProfile(ctx, cp)
	if err != nil {
		return agents.StepUsage{}, err
	}

	report, finalContent, usage, err := o.reviewer.Review(ctx, content, plan, profile)
	if err != nil {
		return usage, err
	}
	if finalContent != content {
		if err := o.ws.SaveText(cp.RunID, workspace.BlogContentFile, finalContent); err != nil {
			return usage, err
		}
	}
	if err := o.ws.SaveJSON(cp.RunID, workspace.ReviewReportFile, report); err != nil {
		return usage, err
	}
	cp.Artifacts[StepReview] = workspace.ReviewReportFile
	return usage, nil
}

// loadToneProfile resolves the run's tone profile through the content-hash
// cache. Runs without a tone file use no profile.
func (o *Orchestrator) loadToneProfile(ctx context.Context, cp *Checkpoint) (*tone.Profile, error) {
	path := cp.Metadata["tone_file"]
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tone reference %s: %w", path, err)
	}
	profile, err := o.toneCache.GetOrCompute(ctx, string(data), o.learner.Analyze)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (o *Orchestrator) recordStep(runID, step string, usage agents.StepUsage, duration time.Duration, err error) {
	if o.tel == nil {
		return
	}
	event := telemetry.StepEvent{
		RunID:      runID,
		Step:       step,
		Duration:   duration,
		Success:    err == nil,
		Cost:       usage.Cost,
		TokensUsed: usage.Tokens,
		ModelUsed:  usage.Model,
	}
	if err != nil {
		event.Error = err.Error()
	}
	o.tel.RecordStepEvent(event)
}

func (o *Orchestrator) recordRun(cp *Checkpoint, duration time.Duration, tokens int64, cost float64, success bool, err error) {
	if o.tel == nil {
		return
	}
	event := telemetry.RunEvent{
		RunID:      cp.RunID,
		Topic:      cp.Topic,
		Duration:   duration,
		Success:    success,
		Cost:       cost,
		TokensUsed: tokens,
		StepsRun:   cp.CompletedSteps,
	}
	if err != nil {
		event.Error = err.Error()
	}
	o.tel.RecordRunEvent(event)
}
