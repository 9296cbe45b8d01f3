package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/blogforge/blogforge/internal/llm"
	"github.com/blogforge/blogforge/internal/tone"
)

func toneCMD() *cobra.Command {
	var toneCmd = &cobra.Command{
		Use:   "tone",
		Short: "Work with tone profiles",
	}

	var analyze = &cobra.Command{
		Use:   "analyze <file>",
		Short: "Extract the tone profile of a reference text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, "[TONE] ")

			provider, err := llm.New(cfg.LLM, logger)
			if err != nil {
				return err
			}
			learner := tone.NewLearner(provider, cfg.LLM.Routing.Model("analysis"), logger)
			cache, err := tone.NewCache(cfg.Tone.CacheDir, logger)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading reference text: %w", err)
			}

			timeout := cfg.General.DefaultTimeout
			if timeout <= 0 {
				timeout = time.Minute
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			profile, err := cache.GetOrCompute(ctx, string(data), learner.Analyze)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(profile)
		},
	}

	var clearDisk bool
	var clear = &cobra.Command{
		Use:   "clear",
		Short: "Drop cached tone profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cache, err := tone.NewCache(cfg.Tone.CacheDir, newLogger(cfg, "[TONE] "))
			if err != nil {
				return err
			}
			return cache.Clear(clearDisk)
		},
	}
	clear.Flags().BoolVar(&clearDisk, "disk", false, "also remove the on-disk profiles")

	toneCmd.AddCommand(analyze, clear)
	return toneCmd
}
