//go:build !windows

package process

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func startAgent(t *testing.T, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
	})
	return cmd
}

func TestStopAllTerminatesAgentGroup(t *testing.T) {
	cmd := startAgent(t, "sleep", "10")
	pid := cmd.Process.Pid

	registry := NewRegistry()
	registry.Track(Agent{Name: "EXECUTER", PID: pid, Group: GroupID(pid), Wait: WaitOnce(cmd)})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := registry.StopAll(ctx); err != nil {
		t.Fatalf("stop all: %v", err)
	}
	if err := syscall.Kill(pid, 0); err == nil || errors.Is(err, syscall.EPERM) {
		t.Fatalf("expected agent to exit")
	}
	if names := registry.Names(); len(names) != 0 {
		t.Fatalf("expected empty registry, got %v", names)
	}
}

func TestStopAllEscalatesWhenTermIgnored(t *testing.T) {
	cmd := startAgent(t, "sh", "-c", "trap '' TERM; while :; do sleep 0.05; done")
	pid := cmd.Process.Pid
	// Give the shell time to install its trap.
	time.Sleep(100 * time.Millisecond)

	registry := NewRegistry()
	registry.Track(Agent{Name: "PLANNER", PID: pid, Group: GroupID(pid), Wait: WaitOnce(cmd)})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = registry.StopAll(ctx)

	if err := syscall.Kill(pid, 0); err == nil || errors.Is(err, syscall.EPERM) {
		t.Fatalf("expected agent to be killed")
	}
}

func TestStopIgnoresExitedAgent(t *testing.T) {
	cmd := startAgent(t, "true")
	wait := WaitOnce(cmd)
	if err := wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	registry := NewRegistry()
	registry.Track(Agent{Name: "PLANNER", PID: cmd.Process.Pid, Wait: wait})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := registry.StopAll(ctx); err != nil {
		t.Fatalf("stop all: %v", err)
	}
}

func TestWaitOnceSharesResult(t *testing.T) {
	cmd := startAgent(t, "sh", "-c", "exit 3")
	wait := WaitOnce(cmd)
	first := wait(context.Background())
	second := wait(context.Background())
	var exitErr *exec.ExitError
	if !errors.As(first, &exitErr) || exitErr.ExitCode() != 3 {
		t.Fatalf("unexpected first result: %v", first)
	}
	if first != second {
		t.Fatalf("expected shared result, got %v and %v", first, second)
	}
}
