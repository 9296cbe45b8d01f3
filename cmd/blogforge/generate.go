package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blogforge/blogforge/internal/pipeline"
	"github.com/blogforge/blogforge/internal/store"
	"github.com/blogforge/blogforge/internal/telemetry"
)

func generateCMD() *cobra.Command {
	var (
		workspaceDir string
		reference    string
		resumeID     string
		step         string
		maxArticles  int
		length       int
	)

	var generate = &cobra.Command{
		Use:   "generate [topic]",
		Short: "Run the blog pipeline for a topic",
		Long: `Runs search, plan, write and review for the given topic and leaves the
draft plus its intermediate artifacts in the workspace. An interrupted run
can be picked up with --resume; --step executes a single step and stops.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if workspaceDir != "" {
				cfg.Workspace.Dir = workspaceDir
			}
			if maxArticles > 0 {
				cfg.Pipeline.MaxArticles = maxArticles
			}
			if length > 0 {
				cfg.Pipeline.TargetBlogLength = length
			}

			logger := newLogger(cfg, "[BLOGFORGE] ")
			tel := telemetry.New(cfg.Telemetry)
			defer tel.Shutdown()

			orch, _, err := buildPipeline(cfg, tel, logger)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			st, err := store.Open(ctx, cfg.Store, logger)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			if step != "" {
				return runSingleStep(ctx, cmd, orch, args, resumeID, reference, step)
			}

			runID := resumeID
			fresh := runID == ""
			if fresh {
				if len(args) == 0 {
					return fmt.Errorf("a topic is required (or --resume <run-id>)")
				}
				runID, err = orch.Prepare(args[0], reference)
				if err != nil {
					return err
				}
			}
			if st != nil && fresh {
				topic := args[0]
				if err := st.StartRun(ctx, runID, topic); err != nil {
					logger.Printf("WARN: record run %s: %v", runID, err)
				}
			}

			res, runErr := orch.Resume(ctx, runID)
			recordOutcome(st, logger, runID, res, runErr)
			if runErr != nil {
				return fmt.Errorf("run %s: %w", runID, runErr)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s completed in %s\n", res.RunID, res.Duration.Round(time.Second))
			fmt.Fprintf(out, "  title:       %s (%d words, %d sections)\n", res.Metadata.Title, res.Metadata.WordCount, res.Metadata.Sections)
			fmt.Fprintf(out, "  output:      %s\n", res.OutputDir)
			fmt.Fprintf(out, "  reliability: %.2f  tone match: %.2f\n", res.Report.ReliabilityScore, res.Report.ToneMatchScore)
			fmt.Fprintf(out, "  usage:       %d tokens, $%.4f\n", res.Tokens, res.Cost)
			if cfg.Telemetry.Enabled {
				fmt.Fprintln(out, tel.Report())
			}
			return nil
		},
	}
	generate.Flags().StringVar(&workspaceDir, "workspace", "", "workspace directory (overrides workspace.dir)")
	generate.Flags().StringVar(&reference, "reference", "", "reference text file whose tone the draft should match")
	generate.Flags().StringVar(&resumeID, "resume", "", "resume an interrupted run by id")
	generate.Flags().StringVar(&step, "step", "", "run a single step (search, plan, write or review) and stop")
	generate.Flags().IntVar(&maxArticles, "max-articles", 0, "articles to fetch during search (overrides pipeline.max_articles)")
	generate.Flags().IntVar(&length, "length", 0, "target word count (overrides pipeline.target_blog_length)")

	return generate
}

// runSingleStep executes one named step of a new or existing run. Store
// bookkeeping is skipped: rows track whole runs, not individual steps.
func runSingleStep(ctx context.Context, cmd *cobra.Command, orch *pipeline.Orchestrator, args []string, resumeID, reference, step string) error {
	runID := resumeID
	if runID == "" {
		if len(args) == 0 {
			return fmt.Errorf("--step needs a topic to start from or --resume <run-id>")
		}
		id, err := orch.Prepare(args[0], reference)
		if err != nil {
			return err
		}
		runID = id
	}

	res, err := orch.RunStep(ctx, runID, step)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "step %s of run %s done in %s (%d tokens, $%.4f)\n",
		step, res.RunID, res.Duration.Round(time.Second), res.Tokens, res.Cost)
	cp, err := orch.Checkpoints().Load(runID)
	if err != nil {
		return nil
	}
	var remaining []string
	for _, name := range pipeline.StepOrder {
		if !cp.Completed(name) {
			remaining = append(remaining, name)
		}
	}
	if len(remaining) == 0 {
		fmt.Fprintf(out, "all steps complete; output in %s\n", res.OutputDir)
	} else {
		fmt.Fprintf(out, "next: blogforge generate --resume %s --step %s\n", runID, remaining[0])
	}
	return nil
}

// recordOutcome mirrors a finished run into the store when one is configured.
// A fresh context keeps bookkeeping alive after a cancelled run.
func recordOutcome(st store.Store, logger *log.Logger, runID string, res *pipeline.RunResult, runErr error) {
	if st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if runErr != nil {
		if err := st.FinishRun(ctx, runID, store.RunStatusFailed, runErr.Error()); err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Printf("WARN: record failure for run %s: %v", runID, err)
		}
		return
	}
	if err := st.FinishRun(ctx, runID, store.RunStatusCompleted, ""); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Printf("WARN: record completion for run %s: %v", runID, err)
	}
	review := store.Review{
		RunID:       runID,
		Reliability: res.Report.ReliabilityScore,
		ToneMatch:   res.Report.ToneMatchScore,
		Corrections: len(res.Report.Corrections),
		Notes:       res.Report.ReliabilityNotes,
	}
	if err := st.SaveReview(ctx, review); err != nil {
		logger.Printf("WARN: save review for run %s: %v", runID, err)
	}
}
