package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"aplgui/internal/aplconfig"
	"aplgui/internal/checkpoint"
	"aplgui/internal/config"
	"aplgui/internal/journal"
	"aplgui/internal/learnings"
	"aplgui/internal/patterns"
	"aplgui/internal/process"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encode response", "status", status, "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// fail maps err to a status code. Unexpected errors become a 500 carrying
// summary as the error and err as the message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, summary string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(summary, "method", r.Method, "path", r.URL.Path, "error", err)
		s.writeJSON(w, status, errorResponse{Error: summary, Message: err.Error()})
		return
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, learnings.ErrPatternNotFound),
		errors.Is(err, patterns.ErrPatternNotFound),
		errors.Is(err, aplconfig.ErrMasterNotFound),
		errors.Is(err, aplconfig.ErrAgentNotFound),
		errors.Is(err, aplconfig.ErrHookNotFound),
		errors.Is(err, aplconfig.ErrSectionNotFound),
		errors.Is(err, checkpoint.ErrCheckpointNotFound),
		errors.Is(err, checkpoint.ErrJournalDisabled),
		errors.Is(err, journal.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkpoint.ErrRollbackInProgress):
		return http.StatusConflict
	case errors.Is(err, process.ErrAlreadyRunning),
		errors.Is(err, process.ErrNotRunning),
		errors.Is(err, process.ErrEmptyGoal),
		errors.Is(err, config.ErrInvalidProjectRoot),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var errBadRequest = errors.New("bad request")

// decodeJSON reads a JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", errBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}
