//go:build !windows

package channel

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"politerm/internal/logging"
	"politerm/internal/protocol"
)

func TestPTYEchoesWrittenLines(t *testing.T) {
	catPath, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat not available")
	}
	channel, err := NewPTY(PTYOptions{
		PlannerCommand:  []string{catPath},
		ExecuterCommand: []string{catPath},
		Logger:          logging.NewDiscardLogger(),
	})
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer channel.Close()

	if err := channel.Write(protocol.Executer, "ping from test"); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		snapshot, err := channel.ReadSnapshot(protocol.Executer, 50)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if strings.Contains(snapshot, "ping from test") {
			break
		}
		select {
		case <-channel.Changes(protocol.Executer):
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for echo, got %q", snapshot)
		}
	}

	planner, err := channel.ReadSnapshot(protocol.Planner, 50)
	if err != nil {
		t.Fatalf("planner snapshot: %v", err)
	}
	if strings.Contains(planner, "ping from test") {
		t.Fatalf("planner transcript should not see executer input: %q", planner)
	}
}

func TestPTYCloseStopsAgents(t *testing.T) {
	catPath, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat not available")
	}
	channel, err := NewPTY(PTYOptions{
		PlannerCommand:  []string{catPath},
		ExecuterCommand: []string{catPath},
		Logger:          logging.NewDiscardLogger(),
	})
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	if names := channel.agents.Names(); len(names) != 2 {
		t.Fatalf("expected both agents tracked, got %v", names)
	}

	_ = channel.Close()
	if names := channel.agents.Names(); len(names) != 0 {
		t.Fatalf("expected agents to be stopped, got %v", names)
	}
	for _, party := range protocol.Parties {
		session := channel.sessions[party]
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := session.wait(ctx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("%s agent still running after close", party)
		}
	}
}
