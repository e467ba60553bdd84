// Package state models the APL session document (.apl/state.json).
package state

import "time"

// Phase is the coarse workflow stage of a session
type Phase string

const (
	PhasePlan    Phase = "plan"
	PhaseExecute Phase = "execute"
	PhaseReview  Phase = "review"
)

// Valid reports whether p is a known phase
func (p Phase) Valid() bool {
	switch p {
	case PhasePlan, PhaseExecute, PhaseReview:
		return true
	}
	return false
}

// TaskStatus is a task's position in its lifecycle
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusSkipped    TaskStatus = "skipped"
)

// Valid reports whether s is a known status
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

type TaskResult struct {
	Summary       string   `json:"summary"`
	FilesCreated  []string `json:"files_created,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
	ApproachUsed  string   `json:"approach_used"`
}

type TaskError struct {
	Attempt  int    `json:"attempt"`
	Error    string `json:"error"`
	Recovery string `json:"recovery,omitempty"`
}

// Task is one unit of agent work. ID is stable across rewrites of the document.
type Task struct {
	ID              int         `json:"id"`
	Description     string      `json:"description"`
	SuccessCriteria []string    `json:"success_criteria"`
	Complexity      string      `json:"complexity"`
	Dependencies    []int       `json:"dependencies"`
	Status          TaskStatus  `json:"status"`
	Attempts        int         `json:"attempts"`
	Result          *TaskResult `json:"result,omitempty"`
	ErrorHistory    []TaskError `json:"error_history,omitempty"`
	StartedAt       string      `json:"started_at,omitempty"`
	CompletedAt     string      `json:"completed_at,omitempty"`
	CurrentStep     string      `json:"current_step,omitempty"`
	FilesInProgress []string    `json:"files_in_progress,omitempty"`
}

// LastError returns the most recent recorded error message
func (t Task) LastError() string {
	if n := len(t.ErrorHistory); n > 0 && t.ErrorHistory[n-1].Error != "" {
		return t.ErrorHistory[n-1].Error
	}
	return "Unknown error"
}

type ParallelGroup struct {
	Group   string `json:"group"`
	TaskIDs []int  `json:"task_ids"`
	Status  string `json:"status"`
}

// FileModification is an entry of the append-only modification log
type FileModification struct {
	Path         string `json:"path"`
	Action       string `json:"action"`
	TaskID       int    `json:"task_id"`
	CheckpointID string `json:"checkpoint_id"`
	Summary      string `json:"summary,omitempty"`
}

// Checkpoint is an immutable point-in-time marker written by the agent
type Checkpoint struct {
	ID             string   `json:"id"`
	Phase          Phase    `json:"phase"`
	Iteration      int      `json:"iteration"`
	Timestamp      string   `json:"timestamp"`
	TasksCompleted []int    `json:"tasks_completed"`
	FilesSnapshot  []string `json:"files_snapshot"`
}

type Scratchpad struct {
	Learnings        []string `json:"learnings"`
	FailedApproaches []string `json:"failed_approaches"`
	OpenQuestions    []string `json:"open_questions"`
}

type VerificationEntry struct {
	TaskID    int    `json:"task_id"`
	Criterion string `json:"criterion"`
	Verified  bool   `json:"verified"`
	Evidence  string `json:"evidence"`
	Timestamp string `json:"timestamp"`
}

type StateError struct {
	TaskID     int    `json:"task_id"`
	Attempt    int    `json:"attempt"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	Resolution string `json:"resolution,omitempty"`
}

type Metrics struct {
	TasksCompleted int     `json:"tasks_completed"`
	TasksRemaining int     `json:"tasks_remaining"`
	TotalAttempts  int     `json:"total_attempts"`
	SuccessRate    float64 `json:"success_rate"`
	ElapsedMinutes float64 `json:"elapsed_minutes"`
	FilesCreated   int     `json:"files_created"`
	FilesModified  int     `json:"files_modified"`
}

// Document is the full session snapshot
type Document struct {
	Version         string              `json:"version"`
	SessionID       string              `json:"session_id"`
	Goal            string              `json:"goal"`
	Phase           Phase               `json:"phase"`
	Iteration       int                 `json:"iteration"`
	MaxIterations   int                 `json:"max_iterations"`
	Confidence      string              `json:"confidence"`
	StartedAt       string              `json:"started_at"`
	LastUpdated     string              `json:"last_updated"`
	Tasks           []Task              `json:"tasks"`
	ParallelGroups  []ParallelGroup     `json:"parallel_groups,omitempty"`
	FilesModified   []FileModification  `json:"files_modified"`
	Checkpoints     []Checkpoint        `json:"checkpoints"`
	Scratchpad      Scratchpad          `json:"scratchpad"`
	VerificationLog []VerificationEntry `json:"verification_log"`
	Errors          []StateError        `json:"errors"`
	Metrics         Metrics             `json:"metrics"`
}

// Default returns the empty document used when no session is active
func Default() *Document {
	return &Document{
		Version:         "1.0.0",
		Phase:           PhasePlan,
		MaxIterations:   20,
		Confidence:      "medium",
		Tasks:           []Task{},
		ParallelGroups:  []ParallelGroup{},
		FilesModified:   []FileModification{},
		Checkpoints:     []Checkpoint{},
		Scratchpad:      Scratchpad{Learnings: []string{}, FailedApproaches: []string{}, OpenQuestions: []string{}},
		VerificationLog: []VerificationEntry{},
		Errors:          []StateError{},
	}
}

// Active reports whether the document describes a running session
func (d *Document) Active() bool {
	return d.SessionID != "" && d.Goal != ""
}

// TaskByID returns the task with the given id
func (d *Document) TaskByID(id int) (Task, bool) {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// TasksByStatus returns the tasks in the given status, in document order
func (d *Document) TasksByStatus(status TaskStatus) []Task {
	out := []Task{}
	for _, t := range d.Tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// CheckpointIndex returns the position of the checkpoint with id, or -1
func (d *Document) CheckpointIndex(id string) int {
	for i, cp := range d.Checkpoints {
		if cp.ID == id {
			return i
		}
	}
	return -1
}

// RecomputeMetrics derives the completion counters from the task list
func (d *Document) RecomputeMetrics() {
	completed := 0
	for _, t := range d.Tasks {
		if t.Status == StatusCompleted {
			completed++
		}
	}
	d.Metrics.TasksCompleted = completed
	d.Metrics.TasksRemaining = len(d.Tasks) - completed
}

// TimestampLess orders RFC 3339 timestamps, falling back to string order
// when either side does not parse.
func TimestampLess(a, b string) bool {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA != nil || errB != nil {
		return a < b
	}
	return ta.Before(tb)
}
