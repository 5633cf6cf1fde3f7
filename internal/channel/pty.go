//go:build !windows

package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"politerm/internal/buffer"
	"politerm/internal/logging"
	"politerm/internal/process"
	"politerm/internal/protocol"
	"politerm/internal/terminal"

	"github.com/creack/pty"
)

const defaultScrollback = 5000

// PTYOptions describes the agent commands launched under their own
// pseudo-terminals.
type PTYOptions struct {
	PlannerCommand  []string
	ExecuterCommand []string
	Dir             string
	Scrollback      int
	Logger          *logging.Logger
}

// PTY runs both agents as child processes and keeps a filtered scrollback of
// their output.
type PTY struct {
	sessions map[protocol.Party]*ptySession
	agents   *process.Registry
	logger   *logging.Logger
}

type ptySession struct {
	party   protocol.Party
	file    *os.File
	cmd     *exec.Cmd
	wait    process.WaitFunc
	filter  terminal.OutputFilter
	mu      sync.Mutex
	lines   *buffer.Ring[string]
	asm     terminal.LineAssembler
	changes chan struct{}
	done    chan struct{}
}

func NewPTY(options PTYOptions) (*PTY, error) {
	scrollback := options.Scrollback
	if scrollback <= 0 {
		scrollback = defaultScrollback
	}
	channel := &PTY{
		sessions: make(map[protocol.Party]*ptySession, 2),
		agents:   process.NewRegistry(),
		logger:   options.Logger,
	}
	commands := map[protocol.Party][]string{
		protocol.Planner:  options.PlannerCommand,
		protocol.Executer: options.ExecuterCommand,
	}
	for _, party := range protocol.Parties {
		session, err := startSession(party, commands[party], options.Dir, scrollback)
		if err != nil {
			_ = channel.Close()
			return nil, fmt.Errorf("start %s: %w", party, err)
		}
		channel.sessions[party] = session
		pid := session.cmd.Process.Pid
		channel.agents.Track(process.Agent{
			Name:  party.String(),
			PID:   pid,
			Group: process.GroupID(pid),
			Wait:  session.wait,
		})
		go channel.readLoop(session)
	}
	return channel, nil
}

func startSession(party protocol.Party, command []string, dir string, scrollback int) (*ptySession, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, errors.New("command is required")
	}
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}
	file, err := pty.StartWithAttrs(cmd, &pty.Winsize{Cols: 200, Rows: 50}, cmd.SysProcAttr)
	if err != nil {
		return nil, err
	}
	return &ptySession{
		party:   party,
		file:    file,
		cmd:     cmd,
		wait:    process.WaitOnce(cmd),
		filter:  terminal.NewANSIStripFilter(),
		lines:   buffer.NewRing[string](scrollback),
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

func (p *PTY) readLoop(session *ptySession) {
	defer close(session.done)
	chunk := make([]byte, 4096)
	for {
		n, err := session.file.Read(chunk)
		if n > 0 {
			session.append(chunk[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.logger.Debug("pty read stopped", map[string]string{
					"party": session.party.String(),
					"error": err.Error(),
				})
			}
			return
		}
	}
}

func (s *ptySession) append(data []byte) {
	s.mu.Lock()
	for _, line := range s.asm.Write(s.filter.Write(data)) {
		s.lines.Add(line)
	}
	s.mu.Unlock()
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *ptySession) snapshot(maxLines int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.lines.List()
	if partial := s.asm.Partial(); partial != "" {
		lines = append(lines, partial)
	}
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n")
}

func (p *PTY) session(party protocol.Party) (*ptySession, error) {
	session, ok := p.sessions[party]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParty, party)
	}
	return session, nil
}

// Write submits each line followed by a carriage return, the key a terminal
// sends for Enter.
func (p *PTY) Write(party protocol.Party, text string) error {
	session, err := p.session(party)
	if err != nil {
		return err
	}
	p.logger.Info("sending to pty", map[string]string{
		"party":   party.String(),
		"preview": preview(text, 100),
	})
	for _, line := range SplitLines(text) {
		if _, err := io.WriteString(session.file, line+"\r"); err != nil {
			return err
		}
	}
	return nil
}

func (p *PTY) ReadSnapshot(party protocol.Party, maxLines int) (string, error) {
	session, err := p.session(party)
	if err != nil {
		return "", err
	}
	return session.snapshot(maxLines), nil
}

// Interrupt writes ETX, which the line discipline turns into SIGINT.
func (p *PTY) Interrupt(party protocol.Party) error {
	session, err := p.session(party)
	if err != nil {
		return err
	}
	_, err = session.file.Write([]byte{0x03})
	return err
}

func (p *PTY) Changes(party protocol.Party) <-chan struct{} {
	session, ok := p.sessions[party]
	if !ok {
		return nil
	}
	return session.changes
}

// Close stops both agents, SIGTERM first and SIGKILL after the grace
// period, then releases their terminals.
func (p *PTY) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), process.DefaultStopTimeout)
	defer cancel()
	errs := []error{p.agents.StopAll(ctx)}
	for _, session := range p.sessions {
		if err := session.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
		p.logger.Debug("pty closed", map[string]string{
			"party": session.party.String(),
			"pid":   strconv.Itoa(session.cmd.Process.Pid),
		})
	}
	return errors.Join(errs...)
}
