package api

import (
	"fmt"
	"net/http"

	"aplgui/internal/aplconfig"
)

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	merged, err := s.Config.Merged()
	if err != nil {
		s.fail(w, r, "Failed to get config", err)
		return
	}
	s.writeJSON(w, http.StatusOK, merged)
}

func (s *Server) handleMasterConfig(w http.ResponseWriter, r *http.Request) {
	master, err := s.Config.Master()
	if err != nil {
		s.fail(w, r, "Failed to get master config", err)
		return
	}
	s.writeJSON(w, http.StatusOK, master)
}

// handleProjectConfig returns null when the project has no override
func (s *Server) handleProjectConfig(w http.ResponseWriter, r *http.Request) {
	project, err := s.Config.Project()
	if err != nil {
		s.fail(w, r, "Failed to get project config", err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleUpdateMaster(w http.ResponseWriter, r *http.Request) {
	var updates aplconfig.Doc
	if err := decodeJSON(w, r, &updates); err != nil {
		s.fail(w, r, "Failed to update master config", err)
		return
	}
	master, err := s.Config.UpdateMaster(updates)
	if err != nil {
		s.fail(w, r, "Failed to update master config", err)
		return
	}
	s.writeJSON(w, http.StatusOK, master)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var updates aplconfig.Doc
	if err := decodeJSON(w, r, &updates); err != nil {
		s.fail(w, r, "Failed to update project config", err)
		return
	}
	project, err := s.Config.UpdateProject(updates)
	if err != nil {
		s.fail(w, r, "Failed to update project config", err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.Config.Agents()
	if err != nil {
		s.fail(w, r, "Failed to get agents config", err)
		return
	}
	s.writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleHooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := s.Config.Hooks()
	if err != nil {
		s.fail(w, r, "Failed to get hooks config", err)
		return
	}
	s.writeJSON(w, http.StatusOK, hooks)
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleToggle flips the enabled flag of a named agent or hook
func (s *Server) handleToggle(kind string, toggle func(name string, enabled bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toggleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, "Failed to toggle "+kind, err)
			return
		}
		if req.Enabled == nil {
			s.writeError(w, http.StatusBadRequest, "enabled must be a boolean")
			return
		}

		name := r.PathValue("name")
		if err := toggle(name, *req.Enabled); err != nil {
			s.fail(w, r, "Failed to toggle "+kind, err)
			return
		}

		verb := "disabled"
		if *req.Enabled {
			verb = "enabled"
		}
		s.writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("%s %s %s", kind, name, verb)})
	}
}

func (s *Server) handleConfigSection(w http.ResponseWriter, r *http.Request) {
	section, err := s.Config.Section(r.PathValue("section"))
	if err != nil {
		s.fail(w, r, "Failed to get config section", err)
		return
	}
	s.writeJSON(w, http.StatusOK, section)
}
