package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"aplgui/internal/journal"
	"aplgui/internal/logging"
	"aplgui/internal/state"
	"aplgui/internal/telemetry"
)

// Journal records finished rollbacks. *journal.Journal implements it.
type Journal interface {
	Record(ctx context.Context, r journal.Record) (journal.Entry, error)
	List(ctx context.Context, projectRoot string, limit int) ([]journal.Entry, error)
	Snapshot(ctx context.Context, id string, which journal.Which) ([]byte, error)
}

// Manager answers checkpoint queries against the state file and performs
// rollbacks. At most one rollback runs at a time.
type Manager struct {
	store   *state.Store
	journal Journal
	logger  *slog.Logger
	now     func() time.Time

	// save persists the rolled back document
	save func(*state.Document) error

	rollbackMu sync.Mutex

	phaseMu sync.RWMutex
	phase   Phase
}

// NewManager creates a Manager. j may be nil to disable the rollback journal.
func NewManager(store *state.Store, j Journal, logger *slog.Logger) *Manager {
	m := &Manager{
		store:   store,
		journal: j,
		logger:  logging.Component(logging.OrDiscard(logger), "checkpoint"),
		now:     time.Now,
		phase:   PhaseIdle,
	}
	m.save = store.Save
	return m
}

// List returns every checkpoint in document order
func (m *Manager) List() ([]state.Checkpoint, error) {
	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	return doc.Checkpoints, nil
}

// Get returns the checkpoint with id
func (m *Manager) Get(id string) (state.Checkpoint, error) {
	doc, err := m.store.Load()
	if err != nil {
		return state.Checkpoint{}, err
	}
	idx := doc.CheckpointIndex(id)
	if idx < 0 {
		return state.Checkpoint{}, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}
	return doc.Checkpoints[idx], nil
}

// Latest returns the checkpoint with the greatest timestamp, or nil
func (m *Manager) Latest() (*state.Checkpoint, error) {
	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	var latest *state.Checkpoint
	for i := range doc.Checkpoints {
		cp := &doc.Checkpoints[i]
		if latest == nil || state.TimestampLess(latest.Timestamp, cp.Timestamp) {
			latest = cp
		}
	}
	return latest, nil
}

// ByPhase returns the checkpoints taken in phase
func (m *Manager) ByPhase(phase state.Phase) ([]state.Checkpoint, error) {
	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	out := []state.Checkpoint{}
	for _, cp := range doc.Checkpoints {
		if cp.Phase == phase {
			out = append(out, cp)
		}
	}
	return out, nil
}

// Timeline summarizes the checkpoints in timestamp order
func (m *Manager) Timeline() ([]TimelineEntry, error) {
	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	cps := append([]state.Checkpoint(nil), doc.Checkpoints...)
	sort.SliceStable(cps, func(i, j int) bool {
		return state.TimestampLess(cps[i].Timestamp, cps[j].Timestamp)
	})

	out := make([]TimelineEntry, 0, len(cps))
	for _, cp := range cps {
		out = append(out, TimelineEntry{
			ID:                  cp.ID,
			Phase:               cp.Phase,
			Iteration:           cp.Iteration,
			Timestamp:           cp.Timestamp,
			TasksCompletedCount: len(cp.TasksCompleted),
			FilesCount:          len(cp.FilesSnapshot),
		})
	}
	return out, nil
}

// Diff returns what checkpoint id captured
func (m *Manager) Diff(id string) (Diff, error) {
	cp, err := m.Get(id)
	if err != nil {
		return Diff{}, err
	}
	d := Diff{
		TasksCompleted: cp.TasksCompleted,
		FilesModified:  cp.FilesSnapshot,
		Phase:          cp.Phase,
		Iteration:      cp.Iteration,
	}
	if d.TasksCompleted == nil {
		d.TasksCompleted = []int{}
	}
	if d.FilesModified == nil {
		d.FilesModified = []string{}
	}
	return d, nil
}

// Phase returns the phase of the current or most recent rollback
func (m *Manager) Phase() Phase {
	m.phaseMu.RLock()
	defer m.phaseMu.RUnlock()
	return m.phase
}

func (m *Manager) setPhase(p Phase) {
	m.phaseMu.Lock()
	m.phase = p
	m.phaseMu.Unlock()
}

// Rollback restores the state file to checkpoint id. The returned Result is
// always filled in; err carries the sentinel for callers that map it to a
// status code. The state file is never partially written.
func (m *Manager) Rollback(ctx context.Context, id string) (Result, error) {
	if !m.rollbackMu.TryLock() {
		return Result{Success: false, Message: "A rollback is already in progress"}, ErrRollbackInProgress
	}
	defer m.rollbackMu.Unlock()

	ctx, span := telemetry.Tracer().Start(ctx, "checkpoint.rollback")
	defer span.End()
	span.SetAttributes(attribute.String("checkpoint.id", id))

	m.setPhase(PhaseRequested)
	path := m.store.Path()

	m.setPhase(PhaseValidating)
	before, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return m.fail(span, fmt.Sprintf("Failed to read state: %v", err), err)
	}
	doc := state.Default()
	if len(before) > 0 {
		if doc, err = state.Parse(before); err != nil {
			return m.fail(span, fmt.Sprintf("Failed to read state: %v", err), err)
		}
	}
	if doc.CheckpointIndex(id) < 0 {
		return m.fail(span, fmt.Sprintf("Checkpoint %s not found", id), fmt.Errorf("%w: %s", ErrCheckpointNotFound, id))
	}

	m.setPhase(PhaseComputing)
	next, err := Compute(doc, id, m.now())
	if err != nil {
		return m.fail(span, err.Error(), err)
	}

	m.setPhase(PhasePersisting)
	if err := m.save(next); err != nil {
		res, err := m.fail(span, fmt.Sprintf("Failed to update state: %v", err), fmt.Errorf("%w: %v", ErrPersistFailed, err))
		m.record(ctx, id, res, before, nil)
		return res, err
	}

	cp := next.Checkpoints[len(next.Checkpoints)-1]
	m.setPhase(PhaseDone)
	res := Result{Success: true, Message: fmt.Sprintf("Rolled back to checkpoint %s", id), Checkpoint: &cp}
	span.SetStatus(codes.Ok, "")
	m.logger.Info("rolled back", "checkpoint", id, "phase", cp.Phase, "iteration", cp.Iteration)

	after, err := json.Marshal(next)
	if err != nil {
		m.logger.Warn("encode rolled back state for journal", "checkpoint", id, "error", err)
	}
	m.record(ctx, id, res, before, after)
	return res, nil
}

func (m *Manager) fail(span trace.Span, msg string, err error) (Result, error) {
	m.setPhase(PhaseFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	m.logger.Warn("rollback failed", "error", err)
	return Result{Success: false, Message: msg}, err
}

// record journals a rollback that reached the persisting step. Journal
// failures never fail the rollback.
func (m *Manager) record(ctx context.Context, id string, res Result, before, after []byte) {
	if m.journal == nil {
		return
	}
	_, err := m.journal.Record(ctx, journal.Record{
		ProjectRoot:  m.store.ProjectRoot(),
		CheckpointID: id,
		Success:      res.Success,
		Message:      res.Message,
		Before:       before,
		After:        after,
	})
	if err != nil {
		m.logger.Warn("journal rollback", "checkpoint", id, "error", err)
	}
}

// Rollbacks lists journaled rollbacks of the active project, newest first
func (m *Manager) Rollbacks(ctx context.Context, limit int) ([]journal.Entry, error) {
	if m.journal == nil {
		return nil, ErrJournalDisabled
	}
	return m.journal.List(ctx, m.store.ProjectRoot(), limit)
}

// RollbackSnapshot returns the state document stored with a journaled rollback
func (m *Manager) RollbackSnapshot(ctx context.Context, id string, which journal.Which) ([]byte, error) {
	if m.journal == nil {
		return nil, ErrJournalDisabled
	}
	return m.journal.Snapshot(ctx, id, which)
}
