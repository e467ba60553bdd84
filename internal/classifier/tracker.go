package classifier

import (
	"sync"

	"aplgui/internal/aplconfig"
	"aplgui/internal/events"
	"aplgui/internal/learnings"
	"aplgui/internal/state"
)

func parseError(source string, err error) events.Event {
	return events.Error{
		Code:    events.CodeParseError,
		Message: err.Error(),
		Details: map[string]string{"source": source},
	}
}

// StateTracker holds the last good snapshot of one state document
type StateTracker struct {
	mu   sync.Mutex
	last *state.Document
}

// Observe parses data and diffs it against the held snapshot. A document
// that fails to parse yields a single error event and keeps the snapshot.
func (t *StateTracker) Observe(data []byte) []events.Event {
	next, err := state.Parse(data)
	if err != nil {
		return []events.Event{parseError("state", err)}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	evs := DiffState(t.last, next)
	t.last = next
	return evs
}

// Clear handles deletion of the document. The next Observe is a fresh hydration.
func (t *StateTracker) Clear() []events.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = nil
	return []events.Event{events.StateCleared{}}
}

// Snapshot returns the held document, nil before the first good observation
func (t *StateTracker) Snapshot() *state.Document {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// LearningsTracker classifies learnings file changes
type LearningsTracker struct{}

func (LearningsTracker) Observe(data []byte) []events.Event {
	doc, err := learnings.Parse(data)
	if err != nil {
		return []events.Event{parseError("learnings", err)}
	}
	return []events.Event{events.LearningsUpdate{Learnings: doc}}
}

func (LearningsTracker) Clear() []events.Event {
	return []events.Event{events.LearningsCleared{}}
}

// ConfigTracker keeps both config documents so every update can carry the
// merged view.
type ConfigTracker struct {
	mu      sync.Mutex
	master  aplconfig.Doc
	project aplconfig.Doc
}

// ObserveMaster records a new master config
func (t *ConfigTracker) ObserveMaster(data []byte) []events.Event {
	doc, err := aplconfig.Parse(data)
	if err != nil {
		return []events.Event{parseError("master_config", err)}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.master = doc
	return []events.Event{t.update(events.SourceMaster)}
}

// ObserveProject records a new project override
func (t *ConfigTracker) ObserveProject(data []byte) []events.Event {
	doc, err := aplconfig.Parse(data)
	if err != nil {
		return []events.Event{parseError("project_config", err)}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.project = doc
	return []events.Event{t.update(events.SourceProject)}
}

// RemoveProject handles deletion of the project override
func (t *ConfigTracker) RemoveProject() []events.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.project = nil

	evs := []events.Event{events.ConfigProjectRemoved{}}
	if t.master != nil {
		evs = append(evs, t.update(events.SourceMaster))
	}
	return evs
}

// RemoveMaster forgets the master config. Clients keep their last view.
func (t *ConfigTracker) RemoveMaster() []events.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.master = nil
	return nil
}

// Merged returns the current effective configuration
func (t *ConfigTracker) Merged() aplconfig.Doc {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.merged()
}

func (t *ConfigTracker) merged() aplconfig.Doc {
	if t.master == nil {
		// Without a master there is nothing to merge into.
		return aplconfig.Clone(t.project)
	}
	return aplconfig.Merge(t.master, t.project)
}

func (t *ConfigTracker) update(source events.ConfigSource) events.Event {
	return events.ConfigUpdate{Config: t.merged(), Source: source}
}
