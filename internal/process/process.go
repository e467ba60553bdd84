package process

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Process is a started command running in its own process group
type Process struct {
	Cmd *exec.Cmd
	PID int

	mu      sync.Mutex
	done    chan struct{}
	running bool
	waitErr error
}

// StartProcess starts cmd in a new process group and reaps it in the background
func StartProcess(cmd *exec.Cmd) (*Process, error) {
	// Signals go to the whole group so children of the agent die with it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Process{
		Cmd:     cmd,
		PID:     cmd.Process.Pid,
		done:    make(chan struct{}),
		running: true,
	}

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.running = false
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
	}()

	return p, nil
}

// IsRunning returns whether the process is running
func (p *Process) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Signal sends sig to the process group
func (p *Process) Signal(sig syscall.Signal) error {
	if !p.IsRunning() {
		return nil
	}
	err := syscall.Kill(-p.PID, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// Terminate sends SIGTERM and escalates to SIGKILL if the process is still
// alive after grace. It returns once the process has been reaped.
func (p *Process) Terminate(ctx context.Context, grace time.Duration) error {
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return err
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.Signal(syscall.SIGKILL); err != nil {
		return err
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExitCode returns the exit status, or -1 while running or when killed by a signal
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.Cmd.ProcessState == nil {
		return -1
	}
	return p.Cmd.ProcessState.ExitCode()
}

// Err returns the error from Wait once the process has exited
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Wait blocks until the process exits
func (p *Process) Wait() {
	<-p.done
}

// Done returns a channel that closes when the process exits
func (p *Process) Done() <-chan struct{} {
	return p.done
}
