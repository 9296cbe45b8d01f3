// Package workspace manages the on-disk layout of a pipeline run: one
// directory per run holding the artifacts each step writes and the next step
// reads back.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Artifact file names written by the pipeline steps.
const (
	SearchResultsFile = "search_results.json"
	BlogPlanFile      = "blog_plan.json"
	BlogContentFile   = "blog_content.md"
	BlogMetadataFile  = "blog_content.json"
	ReviewReportFile  = "review_report.json"
)

// Manager owns a workspace root and resolves per-run artifact paths.
type Manager struct {
	root string
}

// NewManager creates the workspace root if it does not exist.
func NewManager(root string) (*Manager, error) {
	if root == "" {
		root = "workspace"
	}
	if err := os.MkdirAll(filepath.Join(root, "runs"), 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: root}, nil
}

// Root returns the workspace root directory.
func (m *Manager) Root() string { return m.root }

// RunDir returns the artifact directory for a run, creating it on demand.
func (m *Manager) RunDir(runID string) (string, error) {
	dir := filepath.Join(m.root, "runs", runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return dir, nil
}

// SaveJSON writes v as indented JSON into the run's artifact directory.
func (m *Manager) SaveJSON(runID, name string, v any) error {
	dir, err := m.RunDir(runID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// LoadJSON reads a run artifact into v.
func (m *Manager) LoadJSON(runID, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(m.root, "runs", runID, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// SaveText writes a plain text artifact such as the final markdown.
func (m *Manager) SaveText(runID, name, content string) error {
	dir, err := m.RunDir(runID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// LoadText reads a plain text artifact.
func (m *Manager) LoadText(runID, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(m.root, "runs", runID, name))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

// HasArtifact reports whether a run artifact exists.
func (m *Manager) HasArtifact(runID, name string) bool {
	_, err := os.Stat(filepath.Join(m.root, "runs", runID, name))
	return err == nil
}

// ListRuns returns run IDs with artifact directories, sorted.
func (m *Manager) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.root, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() {
			runs = append(runs, e.Name())
		}
	}
	sort.Strings(runs)
	return runs, nil
}
