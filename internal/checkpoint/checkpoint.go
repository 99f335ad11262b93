// Package checkpoint persists the sync pipeline's progress across runs,
// adapted from the teacher's config.AtomicWriteJSON (temp-file + rename)
// applied to the single-file SyncCheckpoint singleton spec'd in §4.H
// rather than the teacher's session.CheckpointGenerator (which generates
// LLM-summarized rolling checkpoints, a concern memnex has no use for).
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/memnexus/memnex/internal/config"
	. "github.com/memnexus/memnex/internal/logging"
	"github.com/memnexus/memnex/internal/paths"
)

// Checkpoint is the singleton record of an in-progress or last-completed
// sync run.
type Checkpoint struct {
	RunID               string    `json:"run_id"`
	Total               int       `json:"total"`
	Completed           []string  `json:"completed"`
	LastFilePartial     string    `json:"last_file_partial_path,omitempty"`
	LastFilePartialLine int       `json:"last_file_partial_line,omitempty"`
	StartedAt           time.Time `json:"started_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// New starts a fresh checkpoint for a run expected to cover total files.
func New(total int) *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		RunID:     uuid.NewString(),
		Total:     total,
		Completed: []string{},
		StartedAt: now,
		UpdatedAt: now,
	}
}

// IsComplete reports whether every file the run expected to cover has
// been recorded as completed.
func (cp *Checkpoint) IsComplete() bool {
	return len(cp.Completed) >= cp.Total
}

// MarkCompleted appends path to the completed list and bumps UpdatedAt.
func (cp *Checkpoint) MarkCompleted(path string) {
	cp.Completed = append(cp.Completed, path)
	cp.UpdatedAt = time.Now().UTC()
}

// Load reads the checkpoint singleton. A missing file is not an error:
// it returns (nil, nil). A file that exists but fails to parse is
// treated as absent per §4.H — it is renamed aside with a timestamp
// suffix so it doesn't get silently overwritten by the next save, and
// Load still returns (nil, nil).
func Load() (*Checkpoint, error) {
	path, err := paths.CheckpointPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		L_warn("checkpoint: corrupt file, renaming aside", "path", path, "error", err)
		quarantined := fmt.Sprintf("%s.corrupted.%d", path, time.Now().UTC().Unix())
		if renameErr := os.Rename(path, quarantined); renameErr != nil {
			L_warn("checkpoint: failed to quarantine corrupt file", "path", path, "error", renameErr)
		}
		return nil, nil
	}

	return &cp, nil
}

// Save atomically persists cp to the checkpoint singleton path
// (write-temp + rename, via internal/config.AtomicWriteJSON).
func Save(cp *Checkpoint) error {
	path, err := paths.CheckpointPath()
	if err != nil {
		return err
	}
	cp.UpdatedAt = time.Now().UTC()
	if err := config.AtomicWriteJSON(path, cp, 0600); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint singleton. Idempotent: removing an
// already-absent file is not an error.
func Clear() error {
	path, err := paths.CheckpointPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}
