package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/blogforge/blogforge/config"
)

var (
	cfgPath string
	verbose bool
)

func main() {
	var root = &cobra.Command{
		Use:           "blogforge",
		Short:         "Research, write and review technical blog posts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(
		generateCMD(),
		runsCMD(),
		crawlCMD(),
		toneCMD(),
		archiveCMD(),
		serveCMD(),
		migrateCMD(),
		versionCMD(),
	)
	if err := root.Execute(); err != nil {
		log.New(os.Stderr, "", 0).Printf("ERROR: %v", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.General.Debug = true
		cfg.General.LogLevel = "debug"
	}
	return cfg, nil
}

// newLogger builds the prefixed stderr logger every command hands to the
// component constructors. Debug mode adds call sites to each line.
func newLogger(cfg *config.Config, prefix string) *log.Logger {
	flags := log.LstdFlags
	if cfg.General.Debug {
		flags |= log.Lmicroseconds | log.Lshortfile
	}
	return log.New(os.Stderr, prefix, flags)
}
