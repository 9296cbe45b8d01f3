package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blogforge/blogforge/internal/archive"
)

func archiveCMD() *cobra.Command {
	var archiveCmd = &cobra.Command{
		Use:   "archive",
		Short: "Query the local full-text archive of crawled content",
	}

	var limit int
	var search = &cobra.Command{
		Use:   "search <query>...",
		Short: "Search archived items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Archive.Enabled {
				return fmt.Errorf("archive not enabled (archive.enabled)")
			}
			arch, err := archive.Open(cfg.Archive.Path, newLogger(cfg, "[ARCHIVE] "))
			if err != nil {
				return err
			}
			defer arch.Close()

			hits, err := arch.Search(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for _, hit := range hits {
				fmt.Fprintf(out, "%2d. [%s] %s (%.2f)\n", hit.Rank, hit.SourceType, hit.Title, hit.Score)
				fmt.Fprintf(out, "    %s\n", hit.URL)
				if hit.Snippet != "" {
					fmt.Fprintf(out, "    %s\n", hit.Snippet)
				}
			}
			return nil
		},
	}
	search.Flags().IntVar(&limit, "limit", 10, "maximum hits to return")

	archiveCmd.AddCommand(search)
	return archiveCmd
}
