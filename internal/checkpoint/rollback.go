package checkpoint

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"aplgui/internal/state"
)

// Compute returns the document as of checkpoint id. doc is not modified.
//
// Checkpoints after the target (by position) are dropped. Tasks the
// checkpoint did not record as completed go back to pending with their
// progress erased, whatever their current status. The file log keeps only
// entries named in the checkpoint snapshot or written by a completed task.
func Compute(doc *state.Document, id string, now time.Time) (*state.Document, error) {
	idx := doc.CheckpointIndex(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}

	next := doc.Clone()
	cp := next.Checkpoints[idx]

	next.Phase = cp.Phase
	next.Iteration = cp.Iteration
	next.Checkpoints = next.Checkpoints[:idx+1]

	for i, t := range next.Tasks {
		if lo.Contains(cp.TasksCompleted, t.ID) {
			continue
		}
		next.Tasks[i] = resetTask(t)
	}

	next.FilesModified = lo.Filter(next.FilesModified, func(f state.FileModification, _ int) bool {
		return lo.Contains(cp.FilesSnapshot, f.Path) || lo.Contains(cp.TasksCompleted, f.TaskID)
	})

	next.RecomputeMetrics()
	next.LastUpdated = now.UTC().Format(time.RFC3339Nano)
	return next, nil
}

func resetTask(t state.Task) state.Task {
	t.Status = state.StatusPending
	t.Attempts = 0
	t.Result = nil
	t.StartedAt = ""
	t.CompletedAt = ""
	t.CurrentStep = ""
	t.FilesInProgress = nil
	return t
}
