// Package events defines the closed set of messages pushed to real-time
// clients and their wire envelope.
package events

import (
	"aplgui/internal/learnings"
	"aplgui/internal/state"
)

// Event is implemented only by the types in this package
type Event interface {
	Type() string
	isEvent()
}

// Wire type tags
const (
	TypeConnectionEstablished = "connection:established"
	TypeStateUpdate           = "state:update"
	TypeStatePhaseChange      = "state:phase_change"
	TypeStateCleared          = "state:cleared"
	TypeTaskUpdate            = "task:update"
	TypeTaskStarted           = "task:started"
	TypeTaskCompleted         = "task:completed"
	TypeTaskFailed            = "task:failed"
	TypeCheckpointCreated     = "checkpoint:created"
	TypeLearningsUpdate       = "learnings:update"
	TypeLearningsCleared      = "learnings:cleared"
	TypeConfigUpdate          = "config:update"
	TypeConfigProjectRemoved  = "config:project_removed"
	TypeAplStarted            = "apl:started"
	TypeAplStopped            = "apl:stopped"
	TypeAplOutput             = "apl:output"
	TypeAplError              = "apl:error"
	TypeError                 = "error"
)

// AllTypes lists every wire tag Decode understands
var AllTypes = []string{
	TypeConnectionEstablished,
	TypeStateUpdate,
	TypeStatePhaseChange,
	TypeStateCleared,
	TypeTaskUpdate,
	TypeTaskStarted,
	TypeTaskCompleted,
	TypeTaskFailed,
	TypeCheckpointCreated,
	TypeLearningsUpdate,
	TypeLearningsCleared,
	TypeConfigUpdate,
	TypeConfigProjectRemoved,
	TypeAplStarted,
	TypeAplStopped,
	TypeAplOutput,
	TypeAplError,
	TypeError,
}

// ConnectionEstablished greets a new client. A ping is answered with Pong set.
type ConnectionEstablished struct {
	ClientID      string `json:"clientId,omitempty"`
	ServerVersion string `json:"serverVersion,omitempty"`
	Pong          bool   `json:"pong,omitempty"`
}

type StateUpdate struct {
	State *state.Document `json:"state"`
}

type StatePhaseChange struct {
	PreviousPhase state.Phase `json:"previousPhase"`
	NewPhase      state.Phase `json:"newPhase"`
	Iteration     int         `json:"iteration"`
}

type StateCleared struct{}

type TaskUpdate struct {
	Task state.Task `json:"task"`
}

type TaskStarted struct {
	TaskID      int    `json:"taskId"`
	Description string `json:"description"`
}

type TaskCompleted struct {
	TaskID int               `json:"taskId"`
	Result *state.TaskResult `json:"result"`
}

type TaskFailed struct {
	TaskID  int    `json:"taskId"`
	Error   string `json:"error"`
	Attempt int    `json:"attempt"`
}

type CheckpointCreated struct {
	Checkpoint state.Checkpoint `json:"checkpoint"`
}

type LearningsUpdate struct {
	Learnings *learnings.Document `json:"learnings"`
}

type LearningsCleared struct{}

// ConfigSource names the file that triggered a config update
type ConfigSource string

const (
	SourceMaster  ConfigSource = "master"
	SourceProject ConfigSource = "project"
)

// ConfigUpdate carries the merged configuration view
type ConfigUpdate struct {
	Config map[string]any `json:"config"`
	Source ConfigSource   `json:"source"`
}

type ConfigProjectRemoved struct{}

type AplStarted struct {
	Goal      string `json:"goal"`
	SessionID string `json:"sessionId"`
}

// StopReason explains why the supervised process ended
type StopReason string

const (
	StopCompleted   StopReason = "completed"
	StopUserStopped StopReason = "user_stopped"
	StopError       StopReason = "error"
	StopTimeout     StopReason = "timeout"
)

type AplStopped struct {
	Reason  StopReason `json:"reason"`
	Summary string     `json:"summary,omitempty"`
}

// Stream identifies a child process output stream
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

type AplOutput struct {
	Stream Stream `json:"stream"`
	Data   string `json:"data"`
}

type AplError struct {
	Error string `json:"error"`
	Fatal bool   `json:"fatal"`
}

// Error codes carried by Error events
const (
	CodeParseError   = "PARSE_ERROR"
	CodeWatcherError = "WATCHER_ERROR"
)

// Error reports a problem that did not produce domain events
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (ConnectionEstablished) Type() string { return TypeConnectionEstablished }
func (StateUpdate) Type() string           { return TypeStateUpdate }
func (StatePhaseChange) Type() string      { return TypeStatePhaseChange }
func (StateCleared) Type() string          { return TypeStateCleared }
func (TaskUpdate) Type() string            { return TypeTaskUpdate }
func (TaskStarted) Type() string           { return TypeTaskStarted }
func (TaskCompleted) Type() string         { return TypeTaskCompleted }
func (TaskFailed) Type() string            { return TypeTaskFailed }
func (CheckpointCreated) Type() string     { return TypeCheckpointCreated }
func (LearningsUpdate) Type() string       { return TypeLearningsUpdate }
func (LearningsCleared) Type() string      { return TypeLearningsCleared }
func (ConfigUpdate) Type() string          { return TypeConfigUpdate }
func (ConfigProjectRemoved) Type() string  { return TypeConfigProjectRemoved }
func (AplStarted) Type() string            { return TypeAplStarted }
func (AplStopped) Type() string            { return TypeAplStopped }
func (AplOutput) Type() string             { return TypeAplOutput }
func (AplError) Type() string              { return TypeAplError }
func (Error) Type() string                 { return TypeError }

func (ConnectionEstablished) isEvent() {}
func (StateUpdate) isEvent()           {}
func (StatePhaseChange) isEvent()      {}
func (StateCleared) isEvent()          {}
func (TaskUpdate) isEvent()            {}
func (TaskStarted) isEvent()           {}
func (TaskCompleted) isEvent()         {}
func (TaskFailed) isEvent()            {}
func (CheckpointCreated) isEvent()     {}
func (LearningsUpdate) isEvent()       {}
func (LearningsCleared) isEvent()      {}
func (ConfigUpdate) isEvent()          {}
func (ConfigProjectRemoved) isEvent()  {}
func (AplStarted) isEvent()            {}
func (AplStopped) isEvent()            {}
func (AplOutput) isEvent()             {}
func (AplError) isEvent()              {}
func (Error) isEvent()                 {}
