package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"politerm/internal/event"
	"politerm/internal/logging"
	"politerm/internal/metrics"
	"politerm/internal/protocol"
	"politerm/internal/state"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	store := state.NewStore()
	store.GetOrCreate("t1")
	store.GetOrCreate("t2")
	_, err := store.Update("t2", func(task *state.TaskState) error {
		task.AdvanceRound()
		task.Expect(protocol.Executer, protocol.KindResult)
		return task.Transition(state.StatusExecuting)
	})
	require.NoError(t, err)
	return store
}

func get(t *testing.T, handler http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for key, values := range header {
		req.Header[key] = values
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTasksEndpoints(t *testing.T) {
	router := NewRouter(Options{Store: newTestStore(t), Logger: logging.NewDiscardLogger()})

	rec := get(t, router, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []state.TaskState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 2)
	require.Equal(t, "t1", tasks[0].TaskID)

	rec = get(t, router, "/api/tasks?status=executing", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	require.Equal(t, 1, tasks[0].Round)

	rec = get(t, router, "/api/tasks/t2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var task state.TaskState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	require.Equal(t, state.StatusExecuting, task.Status)
	require.Equal(t, protocol.Executer, task.ExpectedSender)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = get(t, router, "/api/tasks/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	var apiErr errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	require.Equal(t, "not_found", apiErr.Code)
}

func TestStatusEndpoint(t *testing.T) {
	router := NewRouter(Options{Store: newTestStore(t), MaxRounds: 7})

	rec := get(t, router, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, 2, status.Tasks)
	require.Equal(t, 2, status.Pending)
	require.Equal(t, 7, status.MaxRounds)
	require.Equal(t, map[string]int{"active": 1, "executing": 1}, status.ByStatus)
}

func TestMissingStoreIsUnavailable(t *testing.T) {
	router := NewRouter(Options{})
	rec := get(t, router, "/api/tasks", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLogsEndpoint(t *testing.T) {
	logger := logging.NewDiscardLogger()
	logger.Info("task started", map[string]string{"task_id": "t1"})
	logger.Warn("task finished", map[string]string{"status": "timeout"})
	router := NewRouter(Options{Logger: logger})

	rec := get(t, router, "/api/logs?level=warning", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []logging.LogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "task finished", entries[0].Message)

	rec = get(t, router, "/api/logs?limit=1", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)

	rec = get(t, router, "/api/logs?limit=zero", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_request")
}

func TestAuthToken(t *testing.T) {
	router := NewRouter(Options{Store: newTestStore(t), AuthToken: "secret"})

	require.Equal(t, http.StatusUnauthorized, get(t, router, "/api/tasks", nil).Code)
	require.Equal(t, http.StatusOK, get(t, router, "/api/tasks", http.Header{"Authorization": {"Bearer secret"}}).Code)
	require.Equal(t, http.StatusOK, get(t, router, "/api/tasks?token=secret", nil).Code)
	require.Equal(t, http.StatusUnauthorized, get(t, router, "/ws/events", nil).Code)
}

func TestMetricsUseRoutePatterns(t *testing.T) {
	registry := metrics.NewRegistry()
	router := NewRouter(Options{Store: newTestStore(t), Metrics: registry})

	get(t, router, "/api/tasks/missing", nil)
	get(t, router, "/api/tasks/other", nil)

	rec := get(t, router, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `politerm_http_requests_total{method="GET",path="/api/tasks/{id}",status="404"} 2`)
}

func TestUnknownRouteIsJSON(t *testing.T) {
	router := NewRouter(Options{})
	rec := get(t, router, "/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
}

func TestEventsWebsocketStreamsDialogueEvents(t *testing.T) {
	bus := event.NewBus[event.DialogueEvent](context.Background(), event.BusOptions{Name: "dialogue"})
	defer bus.Close()
	server := httptest.NewServer(NewRouter(Options{Bus: bus, Logger: logging.NewDiscardLogger()}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	evt := event.NewDialogueEvent(event.TypeBlockReceived, "t1")
	evt.Party = "EXECUTER"
	evt.Kind = "result"
	bus.Publish(evt)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got event.DialogueEvent
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, event.TypeBlockReceived, got.EventType)
	require.Equal(t, "t1", got.TaskID)
	require.Equal(t, "result", got.Kind)
}

func TestEventFilter(t *testing.T) {
	filter := &eventFilter{}
	require.True(t, filter.Allows(event.TypeTaskStarted))

	filter.Set([]string{event.TypeTaskFinished, "bogus"})
	require.True(t, filter.Allows(event.TypeTaskFinished))
	require.False(t, filter.Allows(event.TypeTaskStarted))
	require.False(t, filter.Allows("bogus"))

	filter.Set(nil)
	require.True(t, filter.Allows(event.TypeTaskStarted))
}

func TestOriginCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://localhost:7878/ws/events", nil)
	require.True(t, isOriginAllowed(req, nil))

	req.Header.Set("Origin", "http://localhost:5173")
	require.True(t, isOriginAllowed(req, nil))

	req.Header.Set("Origin", "http://evil.example")
	require.False(t, isOriginAllowed(req, nil))
	require.True(t, isOriginAllowed(req, []string{"evil.example"}))
}

func TestEventsEndpoint(t *testing.T) {
	bus := event.NewBus[event.DialogueEvent](context.Background(), event.BusOptions{Name: "dialogue", HistorySize: 10})
	defer bus.Close()
	for _, taskID := range []string{"t1", "t2", "t1"} {
		bus.Publish(event.NewDialogueEvent(event.TypeTaskStarted, taskID))
	}
	router := NewRouter(Options{Bus: bus})

	rec := get(t, router, "/api/events?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []event.DialogueEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	require.Equal(t, "t2", events[0].TaskID)
	require.Equal(t, "t1", events[1].TaskID)

	rec = get(t, router, "/api/events?task=t1", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)

	rec = get(t, router, "/api/events?task=none", nil)
	require.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	require.Equal(t, http.StatusBadRequest, get(t, router, "/api/events?limit=-1", nil).Code)
	require.Equal(t, http.StatusServiceUnavailable, get(t, NewRouter(Options{}), "/api/events", nil).Code)
}

func TestStatusReportsStreams(t *testing.T) {
	bus := event.NewBus[event.DialogueEvent](context.Background(), event.BusOptions{Name: "dialogue"})
	defer bus.Close()
	logger := logging.NewDiscardLogger()
	_, cancelEvents := bus.Subscribe()
	defer cancelEvents()
	_, cancelLogs := logger.Subscribe(logging.LevelWarning)
	defer cancelLogs()

	router := NewRouter(Options{Store: newTestStore(t), Bus: bus, Logger: logger})
	rec := get(t, router, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, 1, status.Streams.EventSubscribers)
	require.Equal(t, 1, status.Streams.LogSubscribers)
	require.Zero(t, status.Streams.EventsDropped)
}

func TestMetricsRequireToken(t *testing.T) {
	router := NewRouter(Options{Metrics: metrics.NewRegistry(), AuthToken: "secret"})

	require.Equal(t, http.StatusUnauthorized, get(t, router, "/metrics", nil).Code)
	require.Equal(t, http.StatusOK, get(t, router, "/metrics", http.Header{"Authorization": {"Bearer secret"}}).Code)
}

func TestEventsWebsocketHonoursTypesQuery(t *testing.T) {
	bus := event.NewBus[event.DialogueEvent](context.Background(), event.BusOptions{Name: "dialogue"})
	defer bus.Close()
	server := httptest.NewServer(NewRouter(Options{Bus: bus, Logger: logging.NewDiscardLogger()}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events?types=task_finished,bogus"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	bus.Publish(event.NewDialogueEvent(event.TypeTaskStarted, "t1"))
	finished := event.NewDialogueEvent(event.TypeTaskFinished, "t1")
	finished.Status = "completed"
	bus.Publish(finished)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got event.DialogueEvent
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, event.TypeTaskFinished, got.EventType)
	require.Equal(t, "completed", got.Status)
}

func TestRequestedEventTypes(t *testing.T) {
	require.Equal(t, []string{event.TypeTaskStarted, event.TypeNudgeSent}, requestedEventTypes(" task_started, nudge_sent ,nope"))
	require.Empty(t, requestedEventTypes(""))
}
