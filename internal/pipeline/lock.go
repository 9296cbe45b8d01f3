package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// ErrRunLocked reports that another process holds the run's lock, so resuming
// it here would race the checkpoint file.
var ErrRunLocked = errors.New("run is locked by another process")

// runLock is an exclusive per-run lock file. Creation with O_EXCL guarantees
// a single writer per run id on one host.
type runLock struct {
	path string
}

func acquireRunLock(dir, runID string) (*runLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, runID+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w (remove %s if the owner is gone)", ErrRunLocked, path)
		}
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	// The pid makes a stale lock diagnosable by hand.
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write run lock: %w", err)
	}
	return &runLock{path: path}, nil
}

func (l *runLock) release() {
	if l != nil {
		os.Remove(l.path)
	}
}
