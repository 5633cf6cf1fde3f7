package channel

import (
	"fmt"
	"strconv"

	"politerm/internal/logging"
	"politerm/internal/protocol"
	"politerm/internal/runner/tmuxsession"
)

// TmuxClient is the subset of the tmux client used to drive panes.
type TmuxClient interface {
	SendLiteral(target, text string) error
	SendEnter(target string) error
	SendKeys(target string, keys ...string) error
	CapturePaneTail(target string, lines int) ([]byte, error)
}

// Tmux talks to agents running in tmux panes.
type Tmux struct {
	client  TmuxClient
	targets map[protocol.Party]string
	logger  *logging.Logger
}

func NewTmux(client TmuxClient, targets tmuxsession.Targets, logger *logging.Logger) *Tmux {
	return &Tmux{
		client: client,
		targets: map[protocol.Party]string{
			protocol.Planner:  targets.Planner,
			protocol.Executer: targets.Executer,
		},
		logger: logger,
	}
}

// Target returns the pane target of a party.
func (t *Tmux) Target(party protocol.Party) (string, error) {
	target, ok := t.targets[party]
	if !ok || target == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownParty, party)
	}
	return target, nil
}

// Write types each line of text and submits it with its own Enter press, so
// multi-line instructions arrive as discrete lines.
func (t *Tmux) Write(party protocol.Party, text string) error {
	target, err := t.Target(party)
	if err != nil {
		return err
	}
	t.logger.Info("sending to pane", map[string]string{
		"party":   party.String(),
		"target":  target,
		"preview": preview(text, 100),
	})
	for _, line := range SplitLines(text) {
		if line != "" {
			if err := t.client.SendLiteral(target, line); err != nil {
				return err
			}
		}
		if err := t.client.SendEnter(target); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tmux) ReadSnapshot(party protocol.Party, maxLines int) (string, error) {
	target, err := t.Target(party)
	if err != nil {
		return "", err
	}
	output, err := t.client.CapturePaneTail(target, maxLines)
	if err != nil {
		return "", err
	}
	t.logger.Debug("captured pane", map[string]string{
		"target": target,
		"bytes":  strconv.Itoa(len(output)),
	})
	return string(output), nil
}

// Interrupt sends Ctrl-C to the party's pane.
func (t *Tmux) Interrupt(party protocol.Party) error {
	target, err := t.Target(party)
	if err != nil {
		return err
	}
	return t.client.SendKeys(target, "C-c")
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
