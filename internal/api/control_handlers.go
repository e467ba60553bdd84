package api

import (
	"fmt"
	"net/http"
	"strings"

	"aplgui/internal/git"
)

type startRequest struct {
	Goal string `json:"goal"`
}

type startResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	PID       int    `json:"pid,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type projectRequest struct {
	ProjectRoot string `json:"projectRoot"`
}

type projectResponse struct {
	Message     string `json:"message,omitempty"`
	ProjectRoot string `json:"projectRoot"`
	AplDir      string `json:"aplDir"`
}

func (s *Server) handleControlStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Supervisor.Status())
}

func (s *Server) handleControlStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, "Failed to start APL", err)
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		s.writeError(w, http.StatusBadRequest, "Goal is required")
		return
	}

	st, err := s.Supervisor.Start(req.Goal)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("start agent", "error", err)
		}
		s.writeJSON(w, status, startResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to start APL: %v", err),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, startResponse{
		Success:   true,
		Message:   "APL started with goal: " + st.Goal,
		PID:       st.PID,
		SessionID: st.SessionID,
	})
}

func (s *Server) handleControlStop(w http.ResponseWriter, r *http.Request) {
	if err := s.Supervisor.Stop(r.Context()); err != nil {
		s.writeJSON(w, statusFor(err), startResponse{Success: false, Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, startResponse{Success: true, Message: "APL stopped"})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p := s.Workspace.Paths()
	s.writeJSON(w, http.StatusOK, projectResponse{ProjectRoot: p.ProjectRoot, AplDir: p.AplDir})
}

// handleSetProject switches the active project and re-targets the watchers
func (s *Server) handleSetProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, "Failed to update project root", err)
		return
	}
	if strings.TrimSpace(req.ProjectRoot) == "" {
		s.writeError(w, http.StatusBadRequest, "Project root is required")
		return
	}

	p, err := s.Workspace.SetProjectRoot(req.ProjectRoot)
	if err != nil {
		s.fail(w, r, "Failed to update project root", err)
		return
	}
	if s.Watchers != nil {
		if err := s.Watchers.Restart(); err != nil {
			s.fail(w, r, "Failed to restart watchers", err)
			return
		}
	}

	s.logger.Info("project root changed", "root", p.ProjectRoot)
	s.writeJSON(w, http.StatusOK, projectResponse{
		Message:     "Project root updated",
		ProjectRoot: p.ProjectRoot,
		AplDir:      p.AplDir,
	})
}

type infoResponse struct {
	Version     string    `json:"version"`
	ProjectRoot string    `json:"projectRoot"`
	PluginRoot  string    `json:"pluginRoot"`
	AplRunning  bool      `json:"aplRunning"`
	Git         *git.Info `json:"git,omitempty"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	p := s.Workspace.Paths()
	info := infoResponse{
		Version:     s.version,
		ProjectRoot: p.ProjectRoot,
		PluginRoot:  p.PluginRoot,
		AplRunning:  s.Supervisor.Status().Running,
	}
	// Projects outside version control simply have no git section.
	if gi, err := git.ProjectInfo(p.ProjectRoot); err == nil {
		info.Git = gi
	} else {
		s.logger.Debug("no git info", "root", p.ProjectRoot, "error", err)
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	if s.Watchers == nil {
		s.writeError(w, http.StatusNotFound, "Meta watcher is not running")
		return
	}
	s.writeJSON(w, http.StatusOK, s.Watchers.Meta())
}
