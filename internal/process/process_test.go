package process

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestProcess_ExitCode(t *testing.T) {
	p, err := StartProcess(exec.Command("sh", "-c", "exit 7"))
	if err != nil {
		t.Fatalf("StartProcess: %v", err)
	}
	p.Wait()

	if p.IsRunning() {
		t.Error("IsRunning after exit")
	}
	if p.ExitCode() != 7 {
		t.Errorf("ExitCode() = %d, want 7", p.ExitCode())
	}
	if p.Err() == nil {
		t.Error("Err() should report the non-zero exit")
	}
}

func TestProcess_TerminateGroup(t *testing.T) {
	// the shell forks a child sleep; both must die
	p, err := StartProcess(exec.Command("sh", "-c", "sleep 30 & wait"))
	if err != nil {
		t.Fatalf("StartProcess: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Terminate(ctx, time.Second); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	select {
	case <-p.Done():
	default:
		t.Fatal("Done not closed after Terminate")
	}
	if err := p.Signal(0); err != nil {
		t.Errorf("Signal after exit: %v", err)
	}
}
