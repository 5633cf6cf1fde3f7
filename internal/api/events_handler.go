package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"politerm/internal/event"
	"politerm/internal/logging"

	"github.com/gorilla/websocket"
)

// EventsHandler streams dialogue events. ?types=a,b limits the
// subscription to those types for the whole connection. Within it, clients
// may narrow the stream further by sending {"subscribe": [...]}; an empty
// list restores every subscribed type.
type EventsHandler struct {
	Bus            *event.Bus[event.DialogueEvent]
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

type eventSubscribeMessage struct {
	Subscribe []string `json:"subscribe"`
}

var dialogueEventTypes = map[string]struct{}{
	event.TypeTaskStarted:     {},
	event.TypeInstructionSent: {},
	event.TypeBlockReceived:   {},
	event.TypeNudgeSent:       {},
	event.TypeStatusChanged:   {},
	event.TypeTaskFinished:    {},
}

type eventFilter struct {
	mutex sync.RWMutex
	types map[string]struct{}
}

// Allows reports whether eventType passes. An empty filter passes all.
func (filter *eventFilter) Allows(eventType string) bool {
	filter.mutex.RLock()
	defer filter.mutex.RUnlock()
	if len(filter.types) == 0 {
		return true
	}
	_, ok := filter.types[eventType]
	return ok
}

func (filter *eventFilter) Set(subscriptions []string) {
	types := make(map[string]struct{})
	for _, eventType := range subscriptions {
		if _, ok := dialogueEventTypes[eventType]; ok {
			types[eventType] = struct{}{}
		}
	}
	filter.mutex.Lock()
	filter.types = types
	filter.mutex.Unlock()
}

// requestedEventTypes parses a comma separated ?types= value, keeping only
// known dialogue event types.
func requestedEventTypes(raw string) []string {
	var types []string
	for _, part := range strings.Split(raw, ",") {
		eventType := strings.TrimSpace(part)
		if _, ok := dialogueEventTypes[eventType]; ok {
			types = append(types, eventType)
		}
	}
	return types
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !validateToken(r, h.AuthToken) {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:    http.StatusUnauthorized,
			CloseCode: websocket.ClosePolicyViolation,
			Message:   "unauthorized",
		})
		return
	}
	if h.Bus == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "event bus unavailable",
		})
		return
	}

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}
	var (
		events <-chan event.DialogueEvent
		cancel func()
	)
	if types := requestedEventTypes(r.URL.Query().Get("types")); len(types) > 0 {
		events, cancel = h.Bus.SubscribeTypes(types...)
	} else {
		events, cancel = h.Bus.Subscribe()
	}
	defer cancel()

	filter := &eventFilter{}
	serveWSStream(conn, events, func(evt event.DialogueEvent) (any, bool) {
		if !filter.Allows(evt.EventType) {
			return nil, false
		}
		if evt.OccurredAt.IsZero() {
			evt.OccurredAt = time.Now().UTC()
		}
		return evt, true
	}, func(msg []byte) {
		var payload eventSubscribeMessage
		if err := json.Unmarshal(msg, &payload); err != nil {
			return
		}
		filter.Set(payload.Subscribe)
	})
}
