package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"politerm/internal/channel"
	"politerm/internal/config"
	"politerm/internal/logging"
	"politerm/internal/runner/tmux"
	"politerm/internal/runner/tmuxsession"
)

var errChannelUnavailable = errors.New("agent sessions unavailable")

// environment is everything a command touches outside the process.
type environment struct {
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
	LookupEnv func(string) (string, bool)
	Signals   func() (<-chan os.Signal, func())
	// OpenChannel connects to the agents. The returned closer is never nil.
	OpenChannel func(config.Settings, *logging.Logger) (channel.Channel, func() error, error)
	// SessionClient answers tmux session queries for a socket.
	SessionClient func(socket string) tmuxsession.Client
}

func defaultEnvironment() environment {
	return environment{
		Stdin:         os.Stdin,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		LookupEnv:     os.LookupEnv,
		Signals:       notifySignals,
		OpenChannel:   openChannel,
		SessionClient: func(socket string) tmuxsession.Client { return tmux.NewClient(socket) },
	}
}

func notifySignals() (<-chan os.Signal, func()) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	return signals, func() { signal.Stop(signals) }
}

func tmuxOptions(settings config.TmuxSettings) tmuxsession.Options {
	return tmuxsession.Options{
		PlannerTarget:   settings.PlannerTarget,
		ExecuterTarget:  settings.ExecuterTarget,
		PlannerSession:  settings.PlannerSession,
		ExecuterSession: settings.ExecuterSession,
		LegacySession:   settings.LegacySession,
		Window:          settings.Window,
	}
}

// resolveRunningTargets resolves both pane targets and fails with
// errChannelUnavailable unless every session behind them is up.
func resolveRunningTargets(client tmuxsession.Client, settings config.TmuxSettings) (tmuxsession.Targets, error) {
	targets, err := tmuxsession.Resolve(client, tmuxOptions(settings))
	if err != nil {
		return targets, fmt.Errorf("%w: %v", errChannelUnavailable, err)
	}
	running, err := tmuxsession.AllRunning(client, targets)
	if err != nil {
		return targets, fmt.Errorf("%w: %v", errChannelUnavailable, err)
	}
	if !running {
		return targets, fmt.Errorf("%w: start tmux sessions for %s and %s on socket %q",
			errChannelUnavailable, targets.Planner, targets.Executer, settings.Socket)
	}
	return targets, nil
}

func openChannel(settings config.Settings, logger *logging.Logger) (channel.Channel, func() error, error) {
	noop := func() error { return nil }
	if settings.Channel.Backend == "pty" {
		ptyChannel, err := channel.NewPTY(channel.PTYOptions{
			PlannerCommand:  settings.Channel.PlannerCommand,
			ExecuterCommand: settings.Channel.ExecuterCommand,
			Logger:          logger,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("%w: %v", errChannelUnavailable, err)
		}
		return channel.NewSerialized(ptyChannel), ptyChannel.Close, nil
	}

	client := tmux.NewClient(settings.Tmux.Socket)
	targets, err := resolveRunningTargets(client, settings.Tmux)
	if err != nil {
		return nil, noop, err
	}
	logger.Info("agent panes resolved", map[string]string{
		"planner":  targets.Planner,
		"executer": targets.Executer,
		"backend":  settings.Channel.Backend,
	})
	if settings.Channel.Backend == "file" {
		fileTail, err := channel.NewFileTail(client, targets, settings.Channel.TranscriptDir, logger)
		if err != nil {
			return nil, noop, err
		}
		return channel.NewSerialized(fileTail), fileTail.Close, nil
	}
	return channel.NewSerialized(channel.NewTmux(client, targets, logger)), noop, nil
}
