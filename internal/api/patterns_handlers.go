package api

import (
	"net/http"
	"strings"
)

func (s *Server) handlePatternIndex(w http.ResponseWriter, r *http.Request) {
	idx, err := s.Patterns.Index()
	if err != nil {
		s.fail(w, r, "Failed to get pattern index", err)
		return
	}
	s.writeJSON(w, http.StatusOK, idx)
}

func (s *Server) handlePatternCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.Patterns.Categories()
	if err != nil {
		s.fail(w, r, "Failed to get categories", err)
		return
	}
	s.writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handlePatternsByCategory(w http.ResponseWriter, r *http.Request) {
	ps, err := s.Patterns.ByCategory(r.PathValue("category"))
	if err != nil {
		s.fail(w, r, "Failed to get patterns", err)
		return
	}
	s.writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handlePattern(w http.ResponseWriter, r *http.Request) {
	p, err := s.Patterns.Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "Failed to get pattern", err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePatternSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.writeError(w, http.StatusBadRequest, `Query parameter "q" is required`)
		return
	}
	ps, err := s.Patterns.Search(q)
	if err != nil {
		s.fail(w, r, "Failed to search patterns", err)
		return
	}
	s.writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handlePatternTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.Patterns.Tags()
	if err != nil {
		s.fail(w, r, "Failed to get tags", err)
		return
	}
	s.writeJSON(w, http.StatusOK, tags)
}

func (s *Server) handlePatternsByTag(w http.ResponseWriter, r *http.Request) {
	ps, err := s.Patterns.ByTag(r.PathValue("tag"))
	if err != nil {
		s.fail(w, r, "Failed to get patterns by tag", err)
		return
	}
	s.writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handlePatternClearCache(w http.ResponseWriter, r *http.Request) {
	s.Patterns.ClearCache()
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "Pattern cache cleared"})
}
