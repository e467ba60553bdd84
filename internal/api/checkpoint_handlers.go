package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"aplgui/internal/checkpoint"
	"aplgui/internal/journal"
	"aplgui/internal/state"
)

func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	cps, err := s.Checkpoints.List()
	if err != nil {
		s.fail(w, r, "Failed to get checkpoints", err)
		return
	}
	s.writeJSON(w, http.StatusOK, cps)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	tl, err := s.Checkpoints.Timeline()
	if err != nil {
		s.fail(w, r, "Failed to get timeline", err)
		return
	}
	s.writeJSON(w, http.StatusOK, tl)
}

func (s *Server) handleLatestCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := s.Checkpoints.Latest()
	if err != nil {
		s.fail(w, r, "Failed to get latest checkpoint", err)
		return
	}
	if cp == nil {
		s.writeError(w, http.StatusNotFound, "No checkpoints found")
		return
	}
	s.writeJSON(w, http.StatusOK, cp)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := s.Checkpoints.Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "Failed to get checkpoint", err)
		return
	}
	s.writeJSON(w, http.StatusOK, cp)
}

// handleCheckpointSub serves /phase/{phase} and /{id}/diff
func (s *Server) handleCheckpointSub(w http.ResponseWriter, r *http.Request) {
	first, second := r.PathValue("first"), r.PathValue("second")

	switch {
	case first == "phase":
		phase := state.Phase(second)
		if !phase.Valid() {
			s.writeError(w, http.StatusBadRequest, "Unknown phase: "+second)
			return
		}
		cps, err := s.Checkpoints.ByPhase(phase)
		if err != nil {
			s.fail(w, r, "Failed to get checkpoints by phase", err)
			return
		}
		s.writeJSON(w, http.StatusOK, cps)

	case second == "diff":
		diff, err := s.Checkpoints.Diff(first)
		if err != nil {
			s.fail(w, r, "Failed to get checkpoint diff", err)
			return
		}
		s.writeJSON(w, http.StatusOK, diff)

	default:
		s.writeError(w, http.StatusNotFound, "Not found")
	}
}

// handleRollback answers with the rollback result in every case
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	// A client hanging up must not cut the journal write short.
	ctx := context.WithoutCancel(r.Context())

	res, err := s.Checkpoints.Rollback(ctx, r.PathValue("id"))
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, res)
	case errors.Is(err, checkpoint.ErrRollbackInProgress):
		s.writeJSON(w, http.StatusConflict, res)
	case errors.Is(err, checkpoint.ErrCheckpointNotFound):
		s.writeJSON(w, http.StatusBadRequest, res)
	default:
		s.logger.Error("rollback failed", "checkpoint", r.PathValue("id"), "error", err)
		s.writeJSON(w, http.StatusInternalServerError, res)
	}
}

func (s *Server) handleRollbacks(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.Checkpoints.Rollbacks(r.Context(), limit)
	if err != nil {
		s.fail(w, r, "Failed to list rollbacks", err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRollbackSnapshot(w http.ResponseWriter, r *http.Request) {
	which := journal.Which(r.URL.Query().Get("which"))
	if which == "" {
		which = journal.Before
	}
	if which != journal.Before && which != journal.After {
		s.writeError(w, http.StatusBadRequest, `which must be "before" or "after"`)
		return
	}

	data, err := s.Checkpoints.RollbackSnapshot(r.Context(), r.PathValue("id"), which)
	if err != nil {
		s.fail(w, r, "Failed to get rollback snapshot", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
