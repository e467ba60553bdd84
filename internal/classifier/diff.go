// Package classifier turns successive snapshots of the APL documents into
// ordered domain events.
package classifier

import (
	"sort"

	"aplgui/internal/events"
	"aplgui/internal/state"
)

// DiffState returns the events describing the move from prev to next. It is
// pure: the same pair always yields the same sequence. A nil prev is a fresh
// hydration and yields only the state update.
func DiffState(prev, next *state.Document) []events.Event {
	if next == nil {
		return nil
	}
	if prev == nil {
		return []events.Event{events.StateUpdate{State: next}}
	}

	var out []events.Event

	if prev.Phase != next.Phase {
		out = append(out, events.StatePhaseChange{
			PreviousPhase: prev.Phase,
			NewPhase:      next.Phase,
			Iteration:     next.Iteration,
		})
	}

	before := make(map[int]state.TaskStatus, len(prev.Tasks))
	for _, t := range prev.Tasks {
		before[t.ID] = t.Status
	}
	for _, t := range next.Tasks {
		old, ok := before[t.ID]
		if ok && old == t.Status {
			continue
		}
		out = append(out, events.TaskUpdate{Task: t})
		switch t.Status {
		case state.StatusInProgress:
			out = append(out, events.TaskStarted{TaskID: t.ID, Description: t.Description})
		case state.StatusCompleted:
			out = append(out, events.TaskCompleted{TaskID: t.ID, Result: t.Result})
		case state.StatusFailed:
			out = append(out, events.TaskFailed{TaskID: t.ID, Error: t.LastError(), Attempt: t.Attempts})
		}
	}

	for _, cp := range newCheckpoints(prev.Checkpoints, next.Checkpoints) {
		out = append(out, events.CheckpointCreated{Checkpoint: cp})
	}

	return append(out, events.StateUpdate{State: next})
}

// newCheckpoints returns checkpoints of next missing from prev, oldest first.
// Equal timestamps keep their document order.
func newCheckpoints(prev, next []state.Checkpoint) []state.Checkpoint {
	seen := make(map[string]bool, len(prev))
	for _, cp := range prev {
		seen[cp.ID] = true
	}
	var added []state.Checkpoint
	for _, cp := range next {
		if !seen[cp.ID] {
			added = append(added, cp)
		}
	}
	sort.SliceStable(added, func(i, j int) bool {
		return state.TimestampLess(added[i].Timestamp, added[j].Timestamp)
	})
	return added
}
