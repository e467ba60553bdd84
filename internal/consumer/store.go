// Package consumer mirrors the server's event stream into local state, the
// way the dashboard does, and keeps a websocket connection to feed it.
package consumer

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aplgui/internal/events"
	"aplgui/internal/learnings"
	"aplgui/internal/state"
)

// MaxActivity is the length of the activity feed
const MaxActivity = 100

// ActivityKind groups feed entries for display
type ActivityKind string

const (
	ActivityPhase      ActivityKind = "phase"
	ActivityTask       ActivityKind = "task"
	ActivityCheckpoint ActivityKind = "checkpoint"
	ActivityInfo       ActivityKind = "info"
	ActivityError      ActivityKind = "error"
)

// Activity is one line of the feed
type Activity struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Kind      ActivityKind `json:"type"`
	Message   string       `json:"message"`
}

// Snapshot is a copy of the store contents
type Snapshot struct {
	State      *state.Document
	Config     map[string]any
	Learnings  *learnings.Document
	Connected  bool
	AplRunning bool
	Goal       string
	Activity   []Activity
}

// Store applies events to a local copy of the session. It is safe for
// concurrent use.
type Store struct {
	mu         sync.RWMutex
	doc        *state.Document
	config     map[string]any
	learnings  *learnings.Document
	connected  bool
	aplRunning bool
	goal       string
	activity   []Activity
}

// NewStore creates a store holding the default document
func NewStore() *Store {
	return &Store{doc: state.Default(), activity: []Activity{}}
}

// Apply folds one event into the store. at is the envelope timestamp.
func (s *Store) Apply(ev events.Event, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case events.ConnectionEstablished:
		if !e.Pong {
			s.setConnected(true, at)
		}
	case events.StateUpdate:
		if e.State != nil {
			s.setState(e.State, at)
		}
	case events.StatePhaseChange:
		s.addActivity(at, ActivityPhase, fmt.Sprintf("Phase: %s → %s", e.PreviousPhase, e.NewPhase))
	case events.StateCleared:
		s.addActivity(at, ActivityInfo, "APL state cleared")
	case events.TaskUpdate:
		s.updateTask(e.Task, at)
	case events.TaskStarted:
		s.patchTask(e.TaskID, at, func(t *state.Task) {
			t.Status = state.StatusInProgress
		})
	case events.TaskCompleted:
		s.patchTask(e.TaskID, at, func(t *state.Task) {
			t.Status = state.StatusCompleted
			t.Result = e.Result
		})
	case events.TaskFailed:
		s.patchTask(e.TaskID, at, func(t *state.Task) {
			t.Status = state.StatusFailed
			t.Attempts = e.Attempt
		})
	case events.CheckpointCreated:
		s.doc.Checkpoints = append(s.doc.Checkpoints, e.Checkpoint)
		s.addActivity(at, ActivityCheckpoint,
			fmt.Sprintf("Checkpoint %s created at iteration %d", e.Checkpoint.ID, e.Checkpoint.Iteration))
	case events.ConfigUpdate:
		s.config = e.Config
	case events.ConfigProjectRemoved:
		s.addActivity(at, ActivityInfo, "Project config removed")
	case events.LearningsUpdate:
		s.learnings = e.Learnings
	case events.LearningsCleared:
		s.learnings = nil
	case events.AplStarted:
		s.aplRunning = true
		s.goal = e.Goal
		s.addActivity(at, ActivityInfo, "APL started: "+e.Goal)
	case events.AplStopped:
		s.aplRunning = false
		s.goal = ""
		s.addActivity(at, ActivityInfo, "APL stopped: "+string(e.Reason))
	case events.AplError:
		s.addActivity(at, ActivityError, "APL Error: "+e.Error)
	case events.Error:
		s.addActivity(at, ActivityError, e.Message)
	}
}

// SetConnected records the transport state
func (s *Store) SetConnected(connected bool, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setConnected(connected, at)
}

// Snapshot returns a deep copy of the document and a copy of the feed
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		State:      s.doc.Clone(),
		Config:     s.config,
		Learnings:  s.learnings,
		Connected:  s.connected,
		AplRunning: s.aplRunning,
		Goal:       s.goal,
		Activity:   append([]Activity(nil), s.activity...),
	}
}

func (s *Store) setConnected(connected bool, at time.Time) {
	if connected && !s.connected {
		s.addActivity(at, ActivityInfo, "Connected to APL server")
	}
	s.connected = connected
}

// setState replaces the document and logs a phase line when the phase moved
func (s *Store) setState(doc *state.Document, at time.Time) {
	previous := s.doc.Phase
	s.doc = doc.Clone()
	if doc.Phase != "" && doc.Phase != previous {
		s.addActivity(at, ActivityPhase, "Phase changed to "+strings.ToUpper(string(doc.Phase)))
	}
}

// updateTask replaces the task with the same id. Unknown ids are ignored.
func (s *Store) updateTask(task state.Task, at time.Time) {
	i := s.taskIndex(task.ID)
	if i < 0 {
		return
	}
	s.doc.Tasks[i] = task
	s.addTaskActivity(task, at)
}

func (s *Store) patchTask(id int, at time.Time, patch func(*state.Task)) {
	i := s.taskIndex(id)
	if i < 0 {
		return
	}
	patch(&s.doc.Tasks[i])
	s.addTaskActivity(s.doc.Tasks[i], at)
}

func (s *Store) taskIndex(id int) int {
	for i, t := range s.doc.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) addTaskActivity(task state.Task, at time.Time) {
	kind := ActivityTask
	if task.Status == state.StatusFailed {
		kind = ActivityError
	}
	s.addActivity(at, kind, fmt.Sprintf("Task %d: %s - %s", task.ID, task.Status, truncate(task.Description, 50)))
}

// addActivity prepends an entry, keeping the newest MaxActivity
func (s *Store) addActivity(at time.Time, kind ActivityKind, msg string) {
	entry := Activity{ID: uuid.NewString(), Timestamp: at, Kind: kind, Message: msg}
	s.activity = append([]Activity{entry}, s.activity...)
	if len(s.activity) > MaxActivity {
		s.activity = s.activity[:MaxActivity]
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
