package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"politerm"
	"politerm/internal/api"
	"politerm/internal/cli"
	"politerm/internal/config"
	"politerm/internal/dialogue"
	"politerm/internal/event"
	"politerm/internal/interrupt"
	"politerm/internal/logging"
	"politerm/internal/metrics"
	polotel "politerm/internal/otel"
	"politerm/internal/prompt"
	"politerm/internal/state"
	"politerm/internal/version"
)

const eventHistorySize = 256

// runtime holds one orchestrator process: the channel to both agents, the
// engine and everything observing it.
type runtime struct {
	settings   config.Settings
	logger     *logging.Logger
	controller *interrupt.Controller
	engine     *dialogue.Engine
	bus        *event.Bus[event.DialogueEvent]
	ctx        context.Context
	closers    []func()
}

func newLogger(settings config.LogSettings, stderr io.Writer) (*logging.Logger, func() error, error) {
	level, ok := logging.ParseLevel(settings.Level)
	if !ok {
		return nil, nil, fmt.Errorf("invalid log level %q", settings.Level)
	}
	output, closeFile, err := logging.OpenLogFile(settings.File, stderr)
	if err != nil {
		return nil, nil, err
	}
	return logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), level, output), closeFile, nil
}

// newRuntime wires a runtime from settings. On failure it returns nil and
// the exit code to use.
func newRuntime(settings config.Settings, env environment) (*runtime, int) {
	logger, closeLog, err := newLogger(settings.Log, env.Stderr)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return nil, cli.ExitUsage
	}
	rt := &runtime{settings: settings, logger: logger}
	rt.onClose(func() { _ = closeLog() })
	prompts, err := prompt.Load(politerm.EmbeddedConfigFS, settings.Dialogue.PromptDir)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		rt.Close()
		return nil, cli.ExitUsage
	}
	logger.Info("politerm starting", map[string]string{
		"version":    version.Version,
		"backend":    settings.Channel.Backend,
		"max_rounds": strconv.Itoa(settings.Dialogue.MaxRounds),
	})

	rt.controller = interrupt.New()
	signals, stopSignals := env.Signals()
	stopWatch := interrupt.WatchSignals(rt.controller, logger, signals)
	rt.onClose(func() {
		stopWatch()
		stopSignals()
	})
	ctx, cancel := rt.controller.Context(context.Background())
	rt.ctx = ctx
	rt.onClose(cancel)

	otelOptions := polotel.SDKOptionsFromEnv(settings.OTel.Endpoint)
	otelOptions.ServiceVersion = version.Version
	shutdownOTel, err := polotel.SetupSDK(context.Background(), otelOptions)
	if err != nil {
		logger.Warn("tracing unavailable", map[string]string{"error": err.Error()})
	} else {
		rt.onClose(func() {
			if err := shutdownOTel(context.Background()); err != nil {
				logger.Warn("trace flush failed", map[string]string{"error": err.Error()})
			}
		})
	}

	registry := metrics.NewRegistry()
	// The bus outlives the interrupt so the interrupted outcome still reaches
	// subscribers; Close tears it down.
	bus := event.NewBus[event.DialogueEvent](context.Background(), event.BusOptions{
		Name:        "dialogue",
		HistorySize: eventHistorySize,
		Recorder:    registry,
		Logger:      logger.With(map[string]string{"component": "events"}),
	})
	rt.bus = bus
	rt.onClose(bus.Close)

	ch, closeChannel, err := env.OpenChannel(settings, logger)
	if err != nil {
		logger.Error("cannot reach agents", map[string]string{"error": err.Error()})
		fmt.Fprintln(env.Stderr, err)
		rt.Close()
		if errors.Is(err, errChannelUnavailable) {
			return nil, cli.ExitUnavailable
		}
		return nil, cli.ExitFailure
	}
	rt.onClose(func() {
		if err := closeChannel(); err != nil {
			logger.Warn("channel close failed", map[string]string{"error": err.Error()})
		}
	})

	store := state.NewStore()
	rt.engine = dialogue.New(dialogue.Options{
		Channel:      ch,
		Store:        store,
		Interrupt:    rt.controller,
		Logger:       logger,
		Bus:          bus,
		Metrics:      registry,
		PlanTimeout:  settings.Dialogue.PlanTimeout,
		ExecTimeout:  settings.Dialogue.ExecTimeout,
		PollInterval: settings.Dialogue.PollInterval,
		CaptureLines: settings.Dialogue.CaptureLines,
		MaxRounds:    settings.Dialogue.MaxRounds,
		Nudge:        settings.Dialogue.Nudge,
		Prompts:      prompts,
	})
	if path := settings.State.File; path != "" {
		rt.onClose(func() { rt.exportState(path) })
	}

	if settings.API.Listen != "" {
		if settings.API.Token == "" {
			logger.Warn("status api has no token", map[string]string{"listen": settings.API.Listen})
		}
		router := newStatusRouter(settings, store, bus, registry, logger)
		rt.onClose(startHTTPServer("status api", settings.API.Listen, router, logger))
	}
	return rt, cli.ExitOK
}

func newStatusRouter(settings config.Settings, store *state.Store, bus *event.Bus[event.DialogueEvent], registry *metrics.Registry, logger *logging.Logger) http.Handler {
	return api.NewRouter(api.Options{
		Store:          store,
		Bus:            bus,
		Logger:         logger.With(map[string]string{"component": "api"}),
		Metrics:        registry,
		MaxRounds:      settings.Dialogue.MaxRounds,
		AuthToken:      settings.API.Token,
		AllowedOrigins: settings.API.AllowedOrigins,
	})
}

// onClose registers fn to run on Close, in reverse order of registration.
func (rt *runtime) onClose(fn func()) {
	rt.closers = append(rt.closers, fn)
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func (rt *runtime) exportState(path string) {
	tasks := rt.engine.Store().List()
	if err := state.ExportFile(path, tasks); err != nil {
		rt.logger.Error("state export failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return
	}
	rt.logger.Info("state exported", map[string]string{
		"path":  path,
		"tasks": strconv.Itoa(len(tasks)),
	})
}

// exitCodeForError maps an engine error to the process exit code.
func exitCodeForError(err error) int {
	var writeErr *dialogue.WriteError
	if errors.As(err, &writeErr) {
		return cli.ExitUnavailable
	}
	return cli.ExitFailure
}
