package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blogforge/blogforge/internal/pipeline"
	"github.com/blogforge/blogforge/internal/workspace"
)

func runsCMD() *cobra.Command {
	var runs = &cobra.Command{
		Use:   "runs",
		Short: "Inspect pipeline runs recorded in the workspace",
	}

	var list = &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cps, err := openCheckpoints()
			if err != nil {
				return err
			}
			checkpoints, err := cps.List()
			if err != nil {
				return err
			}
			if len(checkpoints) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs yet")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTATE\tUPDATED\tTOPIC")
			for _, cp := range checkpoints {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					cp.RunID, cp.CurrentStep, cp.UpdatedAt.Local().Format("2006-01-02 15:04"), cp.Topic)
			}
			return w.Flush()
		},
	}

	var show = &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run's checkpoint and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cps, err := openCheckpoints()
			if err != nil {
				return err
			}
			cp, err := cps.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run:     %s\n", cp.RunID)
			fmt.Fprintf(out, "topic:   %s\n", cp.Topic)
			fmt.Fprintf(out, "state:   %s\n", cp.CurrentStep)
			fmt.Fprintf(out, "updated: %s\n", cp.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "steps:\n")
			for _, step := range pipeline.StepOrder {
				mark := " "
				if cp.Completed(step) {
					mark = "x"
				}
				fmt.Fprintf(out, "  [%s] %s\n", mark, step)
			}
			if len(cp.Artifacts) > 0 {
				fmt.Fprintf(out, "artifacts:\n")
				steps := make([]string, 0, len(cp.Artifacts))
				for step := range cp.Artifacts {
					steps = append(steps, step)
				}
				sort.Strings(steps)
				for _, step := range steps {
					fmt.Fprintf(out, "  %s: %s\n", step, cp.Artifacts[step])
				}
			}
			if msg, ok := cp.Metadata["error"]; ok {
				fmt.Fprintf(out, "error:   %s\n", msg)
			}
			return nil
		},
	}

	runs.AddCommand(list, show)
	return runs
}

// openCheckpoints reaches the checkpoint store without constructing the full
// orchestrator, so listing works with no LLM credentials configured.
func openCheckpoints() (*pipeline.CheckpointStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ws, err := workspace.NewManager(cfg.Workspace.Dir)
	if err != nil {
		return nil, err
	}
	return pipeline.NewCheckpointStore(ws.Root())
}
