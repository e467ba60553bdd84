package api

import (
	"net/http"
	"strconv"

	"aplgui/internal/state"
)

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	doc, err := s.State.Load()
	if err != nil {
		s.fail(w, r, "Failed to get state", err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleStateActive(w http.ResponseWriter, r *http.Request) {
	active, err := s.State.HasActiveSession()
	if err != nil {
		s.fail(w, r, "Failed to check active session", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	doc, err := s.State.Load()
	if err != nil {
		s.fail(w, r, "Failed to get tasks", err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc.Tasks)
}

func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid task id")
		return
	}
	doc, err := s.State.Load()
	if err != nil {
		s.fail(w, r, "Failed to get task", err)
		return
	}
	task, ok := doc.TaskByID(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTasksByStatus(w http.ResponseWriter, r *http.Request) {
	status := state.TaskStatus(r.PathValue("status"))
	if !status.Valid() {
		s.writeError(w, http.StatusBadRequest, "Unknown task status: "+string(status))
		return
	}
	doc, err := s.State.Load()
	if err != nil {
		s.fail(w, r, "Failed to get tasks by status", err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc.TasksByStatus(status))
}

// handleStateField serves one part of the state document
func (s *Server) handleStateField(field func(*state.Document) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := s.State.Load()
		if err != nil {
			s.fail(w, r, "Failed to get state", err)
			return
		}
		s.writeJSON(w, http.StatusOK, field(doc))
	}
}

func (s *Server) handleClearState(w http.ResponseWriter, r *http.Request) {
	if err := s.State.Clear(); err != nil {
		s.fail(w, r, "Failed to clear state", err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "State cleared"})
}
