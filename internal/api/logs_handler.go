package api

import (
	"net/http"

	"politerm/internal/logging"

	"github.com/gorilla/websocket"
)

// LogsHandler streams log entries as they are written, at or above the
// optional ?level= threshold.
type LogsHandler struct {
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !validateToken(r, h.AuthToken) {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:    http.StatusUnauthorized,
			CloseCode: websocket.ClosePolicyViolation,
			Message:   "unauthorized",
		})
		return
	}
	minLevel := logging.LevelInfo
	if raw := r.URL.Query().Get("level"); raw != "" {
		level, ok := logging.ParseLevel(raw)
		if !ok {
			writeWSError(w, r, nil, h.Logger, wsError{Status: http.StatusBadRequest, Message: "invalid log level"})
			return
		}
		minLevel = level
	}
	entries, cancel := h.Logger.Subscribe(minLevel)
	if entries == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "log stream unavailable",
		})
		return
	}

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		cancel()
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}
	defer cancel()

	serveWSStream(conn, entries, func(entry logging.LogEntry) (any, bool) {
		return entry, true
	}, nil)
}
