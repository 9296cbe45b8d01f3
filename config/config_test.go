package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFetcherNormalizeDefaults(t *testing.T) {
	cfg := FetcherConfig{}.Normalize()
	if cfg.Concurrency != 5 {
		t.Fatalf("expected default concurrency 5, got %d", cfg.Concurrency)
	}
	if cfg.Timeout != 10*time.Second {
		t.Fatalf("expected default timeout 10s, got %s", cfg.Timeout)
	}
	if cfg.MinContentLength != 500 {
		t.Fatalf("expected default min content length 500, got %d", cfg.MinContentLength)
	}
	if cfg.Mode != "http" {
		t.Fatalf("expected default mode http, got %q", cfg.Mode)
	}
}

func TestFetcherValidateRejectsUnknownMode(t *testing.T) {
	cfg := FetcherConfig{Mode: "telnet"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for unknown fetch mode")
	}
}

func TestPipelineNormalizeClampsSections(t *testing.T) {
	cfg := PipelineConfig{MinSections: 5, MaxSections: 2}.Normalize()
	if cfg.MaxSections < cfg.MinSections {
		t.Fatalf("expected max sections >= min sections, got %d < %d", cfg.MaxSections, cfg.MinSections)
	}
	if cfg.MaxArticles != 3 || cfg.TargetBlogLength != 1500 || cfg.SectionWordTarget != 300 {
		t.Fatalf("unexpected pipeline defaults: %+v", cfg)
	}
}

func TestToneNormalizeThreshold(t *testing.T) {
	cfg := ToneConfig{MatchThreshold: 1.7}.Normalize()
	if cfg.MatchThreshold != 0.75 {
		t.Fatalf("expected out-of-range threshold to reset to 0.75, got %.2f", cfg.MatchThreshold)
	}
	if cfg.CacheDir == "" {
		t.Fatalf("expected a default cache dir")
	}
}

func TestPostgresDSNPrefersURL(t *testing.T) {
	cfg := PostgresConfig{URL: "postgres://u:p@h:5/db", Host: "ignored"}
	if got := cfg.DSN(); got != "postgres://u:p@h:5/db" {
		t.Fatalf("expected explicit url to win, got %q", got)
	}

	built := PostgresConfig{User: "bf", Password: "pw", DBName: "blogforge"}
	want := "postgres://bf:pw@localhost:5432/blogforge?sslmode=disable"
	if got := built.DSN(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNotionValidate(t *testing.T) {
	disabled := NotionConfig{}
	if err := disabled.Validate(); err != nil {
		t.Fatalf("disabled notion should not validate: %v", err)
	}
	enabled := NotionConfig{Enabled: true, Token: "secret"}
	if err := enabled.Validate(); err == nil {
		t.Fatalf("expected error when neither database nor page id is set")
	}
}

func TestLoadReadsFileAndFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("general:\n  debug: true\nworkspace:\n  dir: " + filepath.Join(dir, "ws") + "\npipeline:\n  max_articles: 7\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.General.Debug {
		t.Fatalf("expected debug true from file")
	}
	if cfg.Pipeline.MaxArticles != 7 {
		t.Fatalf("expected max_articles 7 from file, got %d", cfg.Pipeline.MaxArticles)
	}
	if cfg.Fetcher.Concurrency != 5 {
		t.Fatalf("expected fetcher default to apply, got %d", cfg.Fetcher.Concurrency)
	}
	if cfg.Tone.MatchThreshold != 0.75 {
		t.Fatalf("expected tone threshold default, got %.2f", cfg.Tone.MatchThreshold)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	defer func() { _ = os.Chdir(cwd) }()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load without a config file should use defaults, got %v", err)
	}
	if cfg.Workspace.Dir != "workspace" {
		t.Fatalf("expected default workspace dir, got %q", cfg.Workspace.Dir)
	}
	if cfg.Search.Provider != "llm" {
		t.Fatalf("expected default search provider llm, got %q", cfg.Search.Provider)
	}
}
