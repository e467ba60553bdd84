// Package process supervises the agent process started from the control panel.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aplgui/internal/events"
	"aplgui/internal/logging"
)

var (
	ErrAlreadyRunning = errors.New("APL is already running")
	ErrNotRunning     = errors.New("APL is not running")
	ErrEmptyGoal      = errors.New("goal is required")
)

// DefaultStopTimeout is how long Stop waits after SIGTERM before SIGKILL
const DefaultStopTimeout = 5 * time.Second

// Publisher receives lifecycle events. *eventhub.Hub implements it.
type Publisher interface {
	EmitAplStarted(goal, sessionID string)
	EmitAplOutput(stream events.Stream, data string)
	EmitAplStopped(reason events.StopReason, summary string)
	EmitAplError(err error, fatal bool)
}

// Options configures how the agent is launched
type Options struct {
	Command string
	Args    []string
	// GoalTemplate formats the goal into the final argument, e.g. "/apl %s"
	GoalTemplate string
	// Dir returns the directory the agent runs in, read on every Start
	Dir         func() string
	StopTimeout time.Duration
	// MaxRuntime stops a run that lasts longer. Zero disables it.
	MaxRuntime time.Duration
	Logger     *slog.Logger
}

// Status describes the supervised run
type Status struct {
	Running   bool   `json:"running"`
	PID       int    `json:"pid,omitempty"`
	Goal      string `json:"goal,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	StartedAt string `json:"startedAt,omitempty"`
}

// run is one started agent process
type run struct {
	proc      *Process
	goal      string
	sessionID string
	startedAt time.Time
	exited    chan struct{}
	deadline  *time.Timer

	// reason overrides the exit-code based reason once set
	reason events.StopReason
}

// Supervisor runs at most one agent process at a time
type Supervisor struct {
	opts   Options
	pub    Publisher
	logger *slog.Logger

	mu  sync.Mutex
	cur *run
}

// NewSupervisor creates a Supervisor publishing to pub
func NewSupervisor(opts Options, pub Publisher) *Supervisor {
	if opts.GoalTemplate == "" {
		opts.GoalTemplate = "%s"
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Dir == nil {
		opts.Dir = func() string { return "" }
	}
	return &Supervisor{
		opts:   opts,
		pub:    pub,
		logger: logging.Component(logging.OrDiscard(opts.Logger), "supervisor"),
	}
}

// Start launches the agent with goal
func (s *Supervisor) Start(goal string) (Status, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return Status{}, ErrEmptyGoal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		return Status{}, ErrAlreadyRunning
	}

	args := append(append([]string{}, s.opts.Args...), fmt.Sprintf(s.opts.GoalTemplate, goal))
	cmd := exec.Command(s.opts.Command, args...)
	dir := s.opts.Dir()
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "APL_PROJECT_ROOT="+dir)
	// Output is held back until apl:started has been published.
	ready := make(chan struct{})
	cmd.Stdout = &streamWriter{stream: events.Stdout, pub: s.pub, ready: ready}
	cmd.Stderr = &streamWriter{stream: events.Stderr, pub: s.pub, ready: ready}
	// Do not hang in Wait on pipes inherited by stray grandchildren.
	cmd.WaitDelay = s.opts.StopTimeout

	proc, err := StartProcess(cmd)
	if err != nil {
		err = fmt.Errorf("start %s: %w", s.opts.Command, err)
		s.pub.EmitAplError(err, true)
		return Status{}, err
	}

	r := &run{
		proc:      proc,
		goal:      goal,
		sessionID: uuid.NewString(),
		startedAt: time.Now().UTC(),
		exited:    make(chan struct{}),
	}
	s.cur = r

	s.logger.Info("agent started", "pid", proc.PID, "goal", goal, "session", r.sessionID)
	s.pub.EmitAplStarted(goal, r.sessionID)
	close(ready)

	if s.opts.MaxRuntime > 0 {
		r.deadline = time.AfterFunc(s.opts.MaxRuntime, func() { s.expire(r) })
	}
	go s.reap(r)

	return statusOf(r), nil
}

// Stop terminates the running agent and waits for it to exit
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	r := s.cur
	if r == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if r.reason == "" {
		r.reason = events.StopUserStopped
	}
	s.mu.Unlock()

	if err := r.proc.Terminate(ctx, s.opts.StopTimeout); err != nil {
		return fmt.Errorf("stop agent: %w", err)
	}

	select {
	case <-r.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports the current run
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return Status{}
	}
	return statusOf(s.cur)
}

// Shutdown stops a running agent. It is a no-op when nothing runs.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return nil
}

func (s *Supervisor) expire(r *run) {
	s.mu.Lock()
	if s.cur != r {
		s.mu.Unlock()
		return
	}
	if r.reason == "" {
		r.reason = events.StopTimeout
	}
	s.mu.Unlock()

	s.logger.Warn("agent exceeded max runtime", "pid", r.proc.PID, "max_runtime", s.opts.MaxRuntime)
	if err := r.proc.Terminate(context.Background(), s.opts.StopTimeout); err != nil {
		s.pub.EmitAplError(err, false)
	}
}

// reap waits for the run to end, clears it and announces the outcome
func (s *Supervisor) reap(r *run) {
	r.proc.Wait()
	if r.deadline != nil {
		r.deadline.Stop()
	}

	code := r.proc.ExitCode()

	s.mu.Lock()
	reason := r.reason
	s.cur = nil
	s.mu.Unlock()

	var summary string
	switch reason {
	case events.StopUserStopped:
		summary = "APL stopped by user"
	case events.StopTimeout:
		summary = fmt.Sprintf("APL exceeded max runtime of %s", s.opts.MaxRuntime)
	default:
		reason = events.StopCompleted
		if code != 0 {
			reason = events.StopError
		}
		summary = fmt.Sprintf("APL finished with code %d", code)
	}

	s.logger.Info("agent exited", "pid", r.proc.PID, "code", code, "reason", reason)
	s.pub.EmitAplStopped(reason, summary)
	close(r.exited)
}

func statusOf(r *run) Status {
	return Status{
		Running:   true,
		PID:       r.proc.PID,
		Goal:      r.goal,
		SessionID: r.sessionID,
		StartedAt: r.startedAt.Format(time.RFC3339),
	}
}

// streamWriter relays each chunk written by the child as one output event
type streamWriter struct {
	stream events.Stream
	pub    Publisher
	ready  <-chan struct{}
}

func (w *streamWriter) Write(p []byte) (int, error) {
	<-w.ready
	w.pub.EmitAplOutput(w.stream, string(p))
	return len(p), nil
}
