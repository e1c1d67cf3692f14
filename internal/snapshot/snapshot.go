// Package snapshot persists engine state as JSON documents on disk.
// Loading is best-effort: a missing or corrupt file degrades to empty
// state instead of failing the engine.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Status describes the outcome of a load.
type Status int

const (
	// StatusOK means the snapshot was read and decoded.
	StatusOK Status = iota
	// StatusEmpty means no snapshot file exists; start fresh.
	StatusEmpty
	// StatusDegraded means the file exists but could not be used.
	StatusDegraded
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// LoadResult reports how a load went so callers can log degradation.
type LoadResult struct {
	Status Status
	Err    error
}

// Degraded reports whether the snapshot existed but was unusable.
func (r LoadResult) Degraded() bool { return r.Status == StatusDegraded }

// Save writes v as indented JSON through a temp file rename so a crash
// cannot leave a half-written snapshot behind.
func Save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot into v. It never fails hard: callers inspect the
// result, log a warning on degradation, and continue with empty state.
func Load(path string, v any) LoadResult {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return LoadResult{Status: StatusEmpty}
		}
		return LoadResult{Status: StatusDegraded, Err: fmt.Errorf("read snapshot: %w", err)}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return LoadResult{Status: StatusDegraded, Err: fmt.Errorf("decode snapshot: %w", err)}
	}
	return LoadResult{Status: StatusOK}
}
