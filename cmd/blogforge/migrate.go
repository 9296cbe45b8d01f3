package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blogforge/blogforge/internal/store"
)

func migrateCMD() *cobra.Command {
	var migDir string
	var migDirDefault = "file://migrations"
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pg := cfg.Store.Postgres
			if pg.URL == "" && pg.DBName == "" {
				return fmt.Errorf("postgres not configured (store.postgres.url or store.postgres.dbname)")
			}
			if migDir == "" {
				migDir = migDirDefault
			}
			return store.Migrate(migDir, pg.DSN(), direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", migDirDefault, "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	return migrate
}
