// Package api serves a read-only HTTP view of a running orchestrator: task
// snapshots, recent logs, a websocket feed of dialogue events and the
// Prometheus metrics.
package api

import (
	"net/http"

	"politerm/internal/event"
	"politerm/internal/logging"
	"politerm/internal/metrics"
	"politerm/internal/state"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Options struct {
	Store          *state.Store
	Bus            *event.Bus[event.DialogueEvent]
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	MaxRounds      int
	AuthToken      string
	AllowedOrigins []string
}

func NewRouter(options Options) http.Handler {
	rest := &RestHandler{
		Store:     options.Store,
		Bus:       options.Bus,
		Logger:    options.Logger,
		MaxRounds: options.MaxRounds,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(options.Metrics.Middleware(routeLabel))
	r.Use(loggingMiddleware(options.Logger))
	r.Use(securityHeaders)

	r.Get("/api/tasks", restHandler(options.AuthToken, rest.handleTasks))
	r.Get("/api/tasks/{id}", restHandler(options.AuthToken, rest.handleTask))
	r.Get("/api/events", restHandler(options.AuthToken, rest.handleEvents))
	r.Get("/api/logs", restHandler(options.AuthToken, rest.handleLogs))
	r.Get("/api/status", restHandler(options.AuthToken, rest.handleStatus))
	r.Method(http.MethodGet, "/ws/events", &EventsHandler{
		Bus:            options.Bus,
		Logger:         options.Logger,
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
	})
	r.Method(http.MethodGet, "/ws/logs", &LogsHandler{
		Logger:         options.Logger,
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
	})
	if options.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", requireToken(options.AuthToken, options.Metrics.Handler()))
	}
	r.NotFound(jsonErrorMiddleware(func(http.ResponseWriter, *http.Request) *apiError {
		return &apiError{Status: http.StatusNotFound, Message: "not found"}
	}))
	r.MethodNotAllowed(jsonErrorMiddleware(func(http.ResponseWriter, *http.Request) *apiError {
		return &apiError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}))
	return r
}
