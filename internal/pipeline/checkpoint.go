// Package pipeline sequences the blog-generation steps and records a
// checkpoint after every transition so an interrupted run can resume where
// it stopped.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound reports a checkpoint that does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is the persisted state of one run. It is overwritten whole on
// every step transition, never appended to, and never merged across runs.
type Checkpoint struct {
	RunID          string            `json:"run_id"`
	Topic          string            `json:"topic"`
	CurrentStep    string            `json:"current_step"`
	CompletedSteps []string          `json:"completed_steps"`
	Artifacts      map[string]string `json:"artifacts,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Completed reports whether the named step is already done.
func (c *Checkpoint) Completed(step string) bool {
	for _, done := range c.CompletedSteps {
		if done == step {
			return true
		}
	}
	return false
}

// MarkCompleted appends the step to the completed set once.
func (c *Checkpoint) MarkCompleted(step string) {
	if !c.Completed(step) {
		c.CompletedSteps = append(c.CompletedSteps, step)
	}
}

// CheckpointStore persists one JSON file per run id under the workspace.
type CheckpointStore struct {
	dir string
}

// NewCheckpointStore creates the checkpoint directory if needed.
func NewCheckpointStore(workspaceRoot string) (*CheckpointStore, error) {
	dir := filepath.Join(workspaceRoot, "checkpoints")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &CheckpointStore{dir: dir}, nil
}

// Save overwrites the run's checkpoint file. The write goes through a temp
// file and rename so a crash never leaves a half-written checkpoint behind.
func (s *CheckpointStore) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	path := s.path(cp.RunID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Load reads the checkpoint for a run id.
func (s *CheckpointStore) Load(runID string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", runID, err)
	}
	return &cp, nil
}

// List returns all checkpoints sorted by last update, newest first.
func (s *CheckpointStore) List() ([]*Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	var checkpoints []*Checkpoint
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "checkpoint_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		runID := strings.TrimSuffix(strings.TrimPrefix(name, "checkpoint_"), ".json")
		cp, err := s.Load(runID)
		if err != nil {
			continue
		}
		checkpoints = append(checkpoints, cp)
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].UpdatedAt.After(checkpoints[j].UpdatedAt)
	})
	return checkpoints, nil
}

// Delete removes a run's checkpoint file.
func (s *CheckpointStore) Delete(runID string) error {
	if err := os.Remove(s.path(runID)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) path(runID string) string {
	return filepath.Join(s.dir, "checkpoint_"+runID+".json")
}
