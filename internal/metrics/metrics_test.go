package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"politerm/internal/protocol"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryCountsDialogueActivity(t *testing.T) {
	registry := NewRegistry()
	registry.Nudged(protocol.Executer)
	registry.Nudged(protocol.Executer)
	registry.BlockReceived(protocol.Planner, protocol.KindPlan)
	registry.Skipped(protocol.Planner, protocol.Message{}, "seen")
	registry.RoundStarted()
	registry.TaskStarted()
	registry.SetActiveTasks(1)
	registry.TaskFinished("completed")
	registry.SetActiveTasks(0)
	registry.TaskAbandoned()
	registry.ObserveWait(protocol.Planner, "received", 2*time.Second)

	if got := testutil.ToFloat64(registry.nudges.WithLabelValues("EXECUTER")); got != 2 {
		t.Fatalf("expected 2 nudges, got %v", got)
	}
	if got := testutil.ToFloat64(registry.blocksReceived.WithLabelValues("PLANNER", "plan")); got != 1 {
		t.Fatalf("expected 1 block, got %v", got)
	}
	if got := testutil.ToFloat64(registry.tasksFinished.WithLabelValues("completed")); got != 1 {
		t.Fatalf("expected 1 finished task, got %v", got)
	}
	if got := testutil.ToFloat64(registry.activeTasks); got != 0 {
		t.Fatalf("expected no active tasks, got %v", got)
	}
	if got := testutil.ToFloat64(registry.tasksStarted); got != 1 {
		t.Fatalf("expected 1 started task, got %v", got)
	}
	if got := testutil.ToFloat64(registry.tasksAbandoned); got != 1 {
		t.Fatalf("expected 1 abandoned task, got %v", got)
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var registry *Registry
	registry.Nudged(protocol.Planner)
	registry.TaskFinished("timeout")
	registry.TaskAbandoned()
	registry.SetActiveTasks(2)
	registry.IncEventPublished("bus", "x")
	handler := registry.Middleware(nil)(http.NotFoundHandler())
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected passthrough, got %d", recorder.Code)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	registry := NewRegistry()
	registry.RoundStarted()
	handler := registry.Middleware(func(*http.Request) string { return "/metrics" })(registry.Handler())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := recorder.Body.String()
	if !strings.Contains(body, "politerm_rounds_total 1") {
		t.Fatalf("expected rounds counter in output:\n%s", body)
	}
	if got := testutil.ToFloat64(registry.requests.WithLabelValues("GET", "/metrics", "200")); got != 1 {
		t.Fatalf("expected request to be counted, got %v", got)
	}
}
