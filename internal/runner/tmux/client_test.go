package tmux

import (
	"errors"
	"os/exec"
	"strings"
	"testing"
)

type tmuxCall struct {
	args  []string
	input []byte
}

type fakeRunner struct {
	calls  []tmuxCall
	output []byte
	err    error
}

func (f *fakeRunner) Run(args []string, input []byte) ([]byte, error) {
	f.calls = append(f.calls, tmuxCall{args: append([]string(nil), args...), input: append([]byte(nil), input...)})
	return f.output, f.err
}

func TestClientSendLiteralUsesSocketAndGuard(t *testing.T) {
	runner := &fakeRunner{}
	client := NewClientWithRunner(runner, "poli")

	if err := client.SendLiteral("planner:tui.0", "-rf is not a flag"); err != nil {
		t.Fatalf("send literal: %v", err)
	}
	expected := []string{"-L", "poli", "send-keys", "-t", "planner:tui.0", "--", "-rf is not a flag"}
	if !equalArgs(runner.calls[0].args, expected) {
		t.Fatalf("unexpected args: %#v", runner.calls[0].args)
	}
}

func TestClientSendEnter(t *testing.T) {
	runner := &fakeRunner{}
	client := NewClientWithRunner(runner, "")

	if err := client.SendEnter("main.1"); err != nil {
		t.Fatalf("send enter: %v", err)
	}
	expected := []string{"send-keys", "-t", "main.1", "C-m"}
	if !equalArgs(runner.calls[0].args, expected) {
		t.Fatalf("unexpected args: %#v", runner.calls[0].args)
	}
}

func TestClientCapturePaneTail(t *testing.T) {
	runner := &fakeRunner{output: []byte("captured")}
	client := NewClientWithRunner(runner, "poli")

	output, err := client.CapturePaneTail("main.0", 400)
	if err != nil {
		t.Fatalf("capture pane: %v", err)
	}
	if string(output) != "captured" {
		t.Fatalf("unexpected output: %q", output)
	}
	expected := []string{"-L", "poli", "capture-pane", "-p", "-J", "-t", "main.0", "-S", "-400"}
	if !equalArgs(runner.calls[0].args, expected) {
		t.Fatalf("unexpected args: %#v", runner.calls[0].args)
	}
}

func TestClientPipePane(t *testing.T) {
	runner := &fakeRunner{}
	client := NewClientWithRunner(runner, "")

	if err := client.PipePane("main.0", "cat >> /tmp/planner.log"); err != nil {
		t.Fatalf("pipe pane: %v", err)
	}
	expected := []string{"pipe-pane", "-t", "main.0", "-o", "cat >> /tmp/planner.log"}
	if !equalArgs(runner.calls[0].args, expected) {
		t.Fatalf("unexpected args: %#v", runner.calls[0].args)
	}
}

func TestClientErrorIncludesOutput(t *testing.T) {
	runner := &fakeRunner{output: []byte("can't find pane: 9\n"), err: errors.New("exit status 1")}
	client := NewClientWithRunner(runner, "")

	err := client.SendKeys("main.9", "C-c")
	if err == nil || !strings.Contains(err.Error(), "can't find pane: 9") {
		t.Fatalf("expected output in error, got %v", err)
	}
}

func TestClientHasSession(t *testing.T) {
	runner := &fakeRunner{}
	client := NewClientWithRunner(runner, "poli")
	ok, err := client.HasSession("planner")
	if err != nil || !ok {
		t.Fatalf("expected session, got %v %v", ok, err)
	}

	runner.err = &exec.ExitError{}
	ok, err = client.HasSession("planner")
	if err != nil || ok {
		t.Fatalf("expected missing session without error, got %v %v", ok, err)
	}
}

func TestNilClientErrors(t *testing.T) {
	var client *Client
	if _, err := client.HasSession("x"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func equalArgs(got, expected []string) bool {
	if len(got) != len(expected) {
		return false
	}
	for i := range got {
		if got[i] != expected[i] {
			return false
		}
	}
	return true
}
