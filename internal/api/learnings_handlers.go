package api

import (
	"net/http"

	"aplgui/internal/learnings"
)

func (s *Server) handleLearnings(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Learnings.Load()
	if err != nil {
		s.fail(w, r, "Failed to get learnings", err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleLearningsStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Learnings.Stats()
	if err != nil {
		s.fail(w, r, "Failed to get learnings stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLearningsField(field func(*learnings.Document) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := s.Learnings.Load()
		if err != nil {
			s.fail(w, r, "Failed to get learnings", err)
			return
		}
		s.writeJSON(w, http.StatusOK, field(doc))
	}
}

func (s *Server) handleLearningPattern(w http.ResponseWriter, r *http.Request) {
	p, err := s.Learnings.PatternByID(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "Failed to get pattern", err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteLearningPattern(w http.ResponseWriter, r *http.Request) {
	if err := s.Learnings.DeletePattern(r.PathValue("id")); err != nil {
		s.fail(w, r, "Failed to delete pattern", err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "Pattern deleted"})
}

func (s *Server) handleClearLearningPatterns(w http.ResponseWriter, r *http.Request) {
	if err := s.Learnings.ClearPatterns(); err != nil {
		s.fail(w, r, "Failed to clear patterns", err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "All patterns cleared"})
}

func (s *Server) handleLearningsByTag(w http.ResponseWriter, r *http.Request) {
	ps, err := s.Learnings.ByTag(r.PathValue("tag"))
	if err != nil {
		s.fail(w, r, "Failed to get patterns by tag", err)
		return
	}
	s.writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handleLearningsByTaskType(w http.ResponseWriter, r *http.Request) {
	ps, err := s.Learnings.ByTaskType(r.PathValue("type"))
	if err != nil {
		s.fail(w, r, "Failed to get patterns by task type", err)
		return
	}
	s.writeJSON(w, http.StatusOK, ps)
}
