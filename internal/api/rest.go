package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"politerm/internal/event"
	"politerm/internal/logging"
	"politerm/internal/state"

	"github.com/go-chi/chi/v5"
)

type RestHandler struct {
	Store     *state.Store
	Bus       *event.Bus[event.DialogueEvent]
	Logger    *logging.Logger
	MaxRounds int
}

type statusResponse struct {
	Tasks     int            `json:"tasks"`
	Pending   int            `json:"pending"`
	ByStatus  map[string]int `json:"by_status"`
	MaxRounds int            `json:"max_rounds"`
	Streams   streamStats    `json:"streams"`
}

// streamStats describes the live feeds: how many clients follow them and
// how many entries slow clients missed.
type streamStats struct {
	EventSubscribers int   `json:"event_subscribers"`
	EventsDropped    int64 `json:"events_dropped"`
	LogSubscribers   int   `json:"log_subscribers"`
	LogsDropped      int64 `json:"logs_dropped"`
}

const defaultEventLimit = 100

type logQuery struct {
	Limit int
	Since *time.Time
	Level logging.Level
}

func (h *RestHandler) requireStore() *apiError {
	if h.Store == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "task store unavailable"}
	}
	return nil
}

func (h *RestHandler) handleTasks(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireStore(); err != nil {
		return err
	}
	tasks := h.Store.List()
	if rawStatus := strings.TrimSpace(r.URL.Query().Get("status")); rawStatus != "" {
		filtered := tasks[:0]
		for _, task := range tasks {
			if task.Status.String() == rawStatus {
				filtered = append(filtered, task)
			}
		}
		tasks = filtered
	}
	if tasks == nil {
		tasks = []state.TaskState{}
	}
	writeJSON(w, http.StatusOK, tasks)
	return nil
}

func (h *RestHandler) handleTask(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireStore(); err != nil {
		return err
	}
	id := chi.URLParam(r, "id")
	task, ok := h.Store.Snapshot(id)
	if !ok {
		return &apiError{Status: http.StatusNotFound, Message: "task not found"}
	}
	writeJSON(w, http.StatusOK, task)
	return nil
}

func (h *RestHandler) handleStatus(w http.ResponseWriter, _ *http.Request) *apiError {
	if err := h.requireStore(); err != nil {
		return err
	}
	tasks := h.Store.List()
	response := statusResponse{
		Tasks:     len(tasks),
		Pending:   len(h.Store.Pending()),
		ByStatus:  map[string]int{},
		MaxRounds: h.MaxRounds,
		Streams: streamStats{
			EventSubscribers: h.Bus.SubscriberCount(),
			EventsDropped:    h.Bus.Dropped(),
			LogSubscribers:   h.Logger.Subscribers(),
			LogsDropped:      h.Logger.Dropped(),
		},
	}
	for _, task := range tasks {
		response.ByStatus[task.Status.String()]++
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

// handleEvents returns the newest retained dialogue events, oldest first,
// optionally narrowed to one task.
func (h *RestHandler) handleEvents(w http.ResponseWriter, r *http.Request) *apiError {
	if h.Bus == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "event bus unavailable"}
	}
	limit := defaultEventLimit
	if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed <= 0 {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid limit"}
		}
		limit = parsed
	}
	taskID := strings.TrimSpace(r.URL.Query().Get("task"))
	var events []event.DialogueEvent
	if taskID == "" {
		events = h.Bus.Recent(limit)
	} else {
		for _, evt := range h.Bus.DumpHistory() {
			if evt.TaskID == taskID {
				events = append(events, evt)
			}
		}
		if len(events) > limit {
			events = events[len(events)-limit:]
		}
	}
	if events == nil {
		events = []event.DialogueEvent{}
	}
	writeJSON(w, http.StatusOK, events)
	return nil
}

func (h *RestHandler) handleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	if h.Logger == nil || h.Logger.Buffer() == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "log buffer unavailable"}
	}
	query, err := parseLogQuery(r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, filterLogEntries(h.Logger.Buffer().Since(query.Level), query))
	return nil
}

func parseLogQuery(r *http.Request) (logQuery, *apiError) {
	values := r.URL.Query()
	query := logQuery{Limit: 100}

	if rawLimit := strings.TrimSpace(values.Get("limit")); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit <= 0 {
			return query, &apiError{Status: http.StatusBadRequest, Message: "invalid limit"}
		}
		query.Limit = limit
	}
	if rawSince := strings.TrimSpace(values.Get("since")); rawSince != "" {
		parsed, err := time.Parse(time.RFC3339, rawSince)
		if err != nil {
			return query, &apiError{Status: http.StatusBadRequest, Message: "invalid since timestamp"}
		}
		query.Since = &parsed
	}
	if rawLevel := strings.TrimSpace(values.Get("level")); rawLevel != "" {
		level, ok := logging.ParseLevel(rawLevel)
		if !ok {
			return query, &apiError{Status: http.StatusBadRequest, Message: "invalid log level"}
		}
		query.Level = level
	}
	return query, nil
}

func filterLogEntries(entries []logging.LogEntry, query logQuery) []logging.LogEntry {
	filtered := make([]logging.LogEntry, 0, len(entries))
	for _, entry := range entries {
		if query.Since != nil && entry.Timestamp.Before(*query.Since) {
			continue
		}
		filtered = append(filtered, entry)
	}
	if query.Limit > 0 && len(filtered) > query.Limit {
		filtered = filtered[len(filtered)-query.Limit:]
	}
	return filtered
}
