// Package checkpoint answers checkpoint queries and rolls the state document
// back to a checkpoint.
package checkpoint

import (
	"errors"

	"aplgui/internal/state"
)

var (
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrRollbackInProgress = errors.New("rollback already in progress")
	ErrPersistFailed      = errors.New("failed to update state")
	ErrJournalDisabled    = errors.New("rollback journal is disabled")
)

// Phase is the position of the current rollback in its state machine
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRequested  Phase = "requested"
	PhaseValidating Phase = "validating"
	PhaseComputing  Phase = "computing"
	PhasePersisting Phase = "persisting"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// Result is reported for every rollback request
type Result struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Checkpoint *state.Checkpoint `json:"checkpoint,omitempty"`
}

// TimelineEntry summarizes one checkpoint
type TimelineEntry struct {
	ID                  string      `json:"id"`
	Phase               state.Phase `json:"phase"`
	Iteration           int         `json:"iteration"`
	Timestamp           string      `json:"timestamp"`
	TasksCompletedCount int         `json:"tasksCompletedCount"`
	FilesCount          int         `json:"filesCount"`
}

// Diff is what a checkpoint captured
type Diff struct {
	TasksCompleted []int       `json:"tasksCompleted"`
	FilesModified  []string    `json:"filesModified"`
	Phase          state.Phase `json:"phase"`
	Iteration      int         `json:"iteration"`
}
