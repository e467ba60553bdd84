// Package api is the HTTP control surface: REST routes under /api, /health
// and the /ws event stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"aplgui/internal/aplconfig"
	"aplgui/internal/checkpoint"
	"aplgui/internal/config"
	"aplgui/internal/learnings"
	"aplgui/internal/logging"
	"aplgui/internal/monitor"
	"aplgui/internal/patterns"
	"aplgui/internal/process"
	"aplgui/internal/state"
)

// Supervisor controls the agent process. *process.Supervisor implements it.
type Supervisor interface {
	Start(goal string) (process.Status, error)
	Stop(ctx context.Context) error
	Status() process.Status
}

// Watchers is the file monitor. *monitor.Monitor implements it.
type Watchers interface {
	Restart() error
	Meta() monitor.MetaSnapshot
}

// Deps are the services behind the routes
type Deps struct {
	Workspace   *config.Workspace
	State       *state.Store
	Config      *aplconfig.Store
	Learnings   *learnings.Store
	Patterns    *patterns.Library
	Checkpoints *checkpoint.Manager
	Supervisor  Supervisor
	Watchers    Watchers
	// WebSocket serves /ws
	WebSocket http.Handler
}

// Options configures the HTTP server
type Options struct {
	Version        string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server routes HTTP requests to the services
type Server struct {
	Deps
	version string
	logger  *slog.Logger
	handler http.Handler

	httpServer *http.Server
}

// NewServer builds the route table and middleware chain
func NewServer(deps Deps, opts Options) *Server {
	s := &Server{
		Deps:    deps,
		version: opts.Version,
		logger:  logging.Component(logging.OrDiscard(opts.Logger), "api"),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)
	s.handler = s.recoverMiddleware(logMiddleware(s.logger, corsMiddleware(opts.AllowedOrigins, mux)))
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.WebSocket != nil {
		mux.Handle("GET /ws", s.WebSocket)
	}

	// State
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/state/active", s.handleStateActive)
	mux.HandleFunc("GET /api/state/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/state/tasks/{id}", s.handleTaskByID)
	mux.HandleFunc("GET /api/state/tasks/status/{status}", s.handleTasksByStatus)
	mux.HandleFunc("GET /api/state/metrics", s.handleStateField(func(d *state.Document) any { return d.Metrics }))
	mux.HandleFunc("GET /api/state/scratchpad", s.handleStateField(func(d *state.Document) any { return d.Scratchpad }))
	mux.HandleFunc("GET /api/state/verification", s.handleStateField(func(d *state.Document) any { return d.VerificationLog }))
	mux.HandleFunc("GET /api/state/errors", s.handleStateField(func(d *state.Document) any { return d.Errors }))
	mux.HandleFunc("DELETE /api/state", s.handleClearState)

	// Config
	mux.HandleFunc("GET /api/config", s.handleConfig)
	mux.HandleFunc("GET /api/config/master", s.handleMasterConfig)
	mux.HandleFunc("GET /api/config/project", s.handleProjectConfig)
	mux.HandleFunc("PATCH /api/config/master", s.handleUpdateMaster)
	mux.HandleFunc("PATCH /api/config/project", s.handleUpdateProject)
	mux.HandleFunc("GET /api/config/agents", s.handleAgents)
	mux.HandleFunc("PATCH /api/config/agents/{name}/toggle", s.handleToggle("Agent", s.Config.ToggleAgent))
	mux.HandleFunc("GET /api/config/hooks", s.handleHooks)
	mux.HandleFunc("PATCH /api/config/hooks/{name}/toggle", s.handleToggle("Hook", s.Config.ToggleHook))
	mux.HandleFunc("GET /api/config/section/{section}", s.handleConfigSection)

	// Learnings
	mux.HandleFunc("GET /api/learnings", s.handleLearnings)
	mux.HandleFunc("GET /api/learnings/stats", s.handleLearningsStats)
	mux.HandleFunc("GET /api/learnings/success-patterns", s.handleLearningsField(func(d *learnings.Document) any { return d.SuccessPatterns }))
	mux.HandleFunc("GET /api/learnings/anti-patterns", s.handleLearningsField(func(d *learnings.Document) any { return d.AntiPatterns }))
	mux.HandleFunc("GET /api/learnings/user-preferences", s.handleLearningsField(func(d *learnings.Document) any { return d.UserPreferences }))
	mux.HandleFunc("GET /api/learnings/project-knowledge", s.handleLearningsField(func(d *learnings.Document) any { return d.ProjectKnowledge }))
	mux.HandleFunc("GET /api/learnings/technique-stats", s.handleLearningsField(func(d *learnings.Document) any { return d.TechniqueStats }))
	mux.HandleFunc("GET /api/learnings/pattern/{id}", s.handleLearningPattern)
	mux.HandleFunc("DELETE /api/learnings/pattern/{id}", s.handleDeleteLearningPattern)
	mux.HandleFunc("DELETE /api/learnings/patterns", s.handleClearLearningPatterns)
	mux.HandleFunc("GET /api/learnings/by-tag/{tag}", s.handleLearningsByTag)
	mux.HandleFunc("GET /api/learnings/by-task-type/{type}", s.handleLearningsByTaskType)

	// Pattern library
	mux.HandleFunc("GET /api/patterns", s.handlePatternIndex)
	mux.HandleFunc("GET /api/patterns/categories", s.handlePatternCategories)
	mux.HandleFunc("GET /api/patterns/category/{category}", s.handlePatternsByCategory)
	mux.HandleFunc("GET /api/patterns/pattern/{id}", s.handlePattern)
	mux.HandleFunc("GET /api/patterns/search", s.handlePatternSearch)
	mux.HandleFunc("GET /api/patterns/tags", s.handlePatternTags)
	mux.HandleFunc("GET /api/patterns/by-tag/{tag}", s.handlePatternsByTag)
	mux.HandleFunc("POST /api/patterns/clear-cache", s.handlePatternClearCache)

	// Checkpoints
	mux.HandleFunc("GET /api/checkpoints", s.handleCheckpoints)
	mux.HandleFunc("GET /api/checkpoints/timeline", s.handleTimeline)
	mux.HandleFunc("GET /api/checkpoints/latest", s.handleLatestCheckpoint)
	mux.HandleFunc("GET /api/checkpoints/rollbacks", s.handleRollbacks)
	mux.HandleFunc("GET /api/checkpoints/rollbacks/{id}/snapshot", s.handleRollbackSnapshot)
	mux.HandleFunc("GET /api/checkpoints/{id}", s.handleCheckpoint)
	// phase/{phase} and {id}/diff overlap, so one route serves both
	mux.HandleFunc("GET /api/checkpoints/{first}/{second}", s.handleCheckpointSub)
	mux.HandleFunc("POST /api/checkpoints/{id}/rollback", s.handleRollback)

	// Control
	mux.HandleFunc("GET /api/control/status", s.handleControlStatus)
	mux.HandleFunc("POST /api/control/start", s.handleControlStart)
	mux.HandleFunc("POST /api/control/stop", s.handleControlStop)
	mux.HandleFunc("GET /api/control/project", s.handleGetProject)
	mux.HandleFunc("POST /api/control/project", s.handleSetProject)
	mux.HandleFunc("GET /api/control/info", s.handleInfo)

	mux.HandleFunc("GET /api/meta", s.handleMeta)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "Not found")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"version":     s.version,
		"projectRoot": s.Workspace.Paths().ProjectRoot,
	})
}
