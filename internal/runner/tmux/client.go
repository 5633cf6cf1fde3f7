package tmux

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// CommandRunner executes tmux commands with optional stdin data.
type CommandRunner interface {
	Run(args []string, input []byte) ([]byte, error)
}

// Client executes tmux commands, optionally against a named server socket.
type Client struct {
	runner CommandRunner
	socket string
}

// NewClient returns a tmux client using the default command runner. An
// empty socket uses the default tmux server.
func NewClient(socket string) *Client {
	return &Client{runner: execRunner{}, socket: strings.TrimSpace(socket)}
}

// NewClientWithRunner returns a tmux client using a custom command runner.
func NewClientWithRunner(runner CommandRunner, socket string) *Client {
	return &Client{runner: runner, socket: strings.TrimSpace(socket)}
}

func (c *Client) Socket() string {
	if c == nil {
		return ""
	}
	return c.socket
}

// SendKeys sends key names (for example C-m or C-c) to a target pane.
func (c *Client) SendKeys(target string, keys ...string) error {
	args := append([]string{"send-keys", "-t", target}, keys...)
	return c.run(args, nil)
}

// SendLiteral types text into a target pane. The "--" guard keeps lines that
// start with a dash from being read as flags.
func (c *Client) SendLiteral(target, text string) error {
	return c.run([]string{"send-keys", "-t", target, "--", text}, nil)
}

// SendEnter submits the current input line of a target pane.
func (c *Client) SendEnter(target string) error {
	return c.SendKeys(target, "C-m")
}

// PipePane pipes pane output to a shell command (typically a file append).
// An empty command stops piping.
func (c *Client) PipePane(target, command string) error {
	args := []string{"pipe-pane", "-t", target}
	if strings.TrimSpace(command) != "" {
		args = append(args, "-o", command)
	}
	return c.run(args, nil)
}

// CapturePane captures the visible pane contents as raw text.
func (c *Client) CapturePane(target string) ([]byte, error) {
	return c.runWithOutput([]string{"capture-pane", "-p", "-t", target}, nil)
}

// CapturePaneTail captures the last lines of pane history with wrapped lines
// joined.
func (c *Client) CapturePaneTail(target string, lines int) ([]byte, error) {
	if lines <= 0 {
		return c.CapturePane(target)
	}
	args := []string{"capture-pane", "-p", "-J", "-t", target, "-S", "-" + strconv.Itoa(lines)}
	return c.runWithOutput(args, nil)
}

// ListPanes describes the panes of a session, one per line.
func (c *Client) ListPanes(sessionName string) (string, error) {
	output, err := c.runWithOutput([]string{"list-panes", "-t", sessionName}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// HasSession reports whether the named session exists.
func (c *Client) HasSession(name string) (bool, error) {
	if c == nil || c.runner == nil {
		return false, errors.New("tmux runner unavailable")
	}
	output, err := c.runner.Run(c.withSocket([]string{"has-session", "-t", name}), nil)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		if len(output) > 0 {
			return false, fmt.Errorf("tmux has-session failed: %s", bytes.TrimSpace(output))
		}
		return false, fmt.Errorf("tmux has-session failed: %w", err)
	}
	return true, nil
}

func (c *Client) run(args []string, input []byte) error {
	_, err := c.runWithOutput(args, input)
	return err
}

func (c *Client) runWithOutput(args []string, input []byte) ([]byte, error) {
	if c == nil || c.runner == nil {
		return nil, errors.New("tmux runner unavailable")
	}
	output, err := c.runner.Run(c.withSocket(args), input)
	if err != nil {
		if len(output) > 0 {
			return nil, fmt.Errorf("tmux %s failed: %s", args[0], bytes.TrimSpace(output))
		}
		return nil, fmt.Errorf("tmux %s failed: %w", args[0], err)
	}
	return output, nil
}

func (c *Client) withSocket(args []string) []string {
	if c.socket == "" {
		return args
	}
	return append([]string{"-L", c.socket}, args...)
}

type execRunner struct{}

func (execRunner) Run(args []string, input []byte) ([]byte, error) {
	cmd := exec.Command("tmux", args...)
	if len(input) > 0 {
		cmd.Stdin = bytes.NewReader(input)
	}
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return exitErr.Stderr, err
		}
	}
	return output, err
}
