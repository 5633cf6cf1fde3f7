package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"politerm/internal/channel"
	"politerm/internal/cli"
	"politerm/internal/event"
	"politerm/internal/logging"
	"politerm/internal/protocol"
	"politerm/internal/state"
)

func TestRuntimeBusOutlivesInterrupt(t *testing.T) {
	te := newTestEnv(t, oneRoundAgents("t1"), "")
	settings, err := loadSettings(&commonFlags{ConfigPath: te.config}, te.env)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	rt, code := newRuntime(settings, te.env)
	if rt == nil {
		t.Fatalf("runtime failed with %d: %s", code, te.stderr.String())
	}
	defer rt.Close()

	rt.controller.Trip("test")
	<-rt.ctx.Done()
	outcome, err := rt.engine.RouteContinuous(rt.ctx, "list files", "t1")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if outcome.Status.String() != "interrupted" {
		t.Fatalf("expected interrupted, got %s", outcome.Status)
	}

	var finished *event.DialogueEvent
	for _, evt := range rt.bus.DumpHistory() {
		if evt.Type() == event.TypeTaskFinished {
			evt := evt
			finished = &evt
		}
	}
	if finished == nil || finished.Status != "interrupted" {
		t.Fatalf("expected interrupted task_finished in history, got %+v", rt.bus.DumpHistory())
	}
}

func TestStatusRouterRequiresConfiguredToken(t *testing.T) {
	te := newTestEnv(t, channel.NewMemory(), "")
	te.vars["POLI_API_TOKEN"] = "s3cret"
	settings, err := loadSettings(&commonFlags{ConfigPath: te.config}, te.env)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	router := newStatusRouter(settings, state.NewStore(), nil, nil, logging.NewDiscardLogger())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	request.Header.Set("Authorization", "Bearer s3cret")
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestRunUsesPromptOverrides(t *testing.T) {
	agents := oneRoundAgents("t1")
	te := newTestEnv(t, agents, "")
	promptDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(promptDir, "opening.tmpl"), []byte("PLAN {{.TaskID}}: {{.Request}}\n"), 0o644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	te.vars["POLI_PROMPT_DIR"] = promptDir

	code := runRun([]string{"--config", te.config, "--task", "list files", "--task-id", "t1"}, te.env)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, te.stderr.String())
	}
	writes := agents.Writes(protocol.Planner)
	if len(writes) == 0 || writes[0] != "PLAN t1: list files" {
		t.Fatalf("expected overridden opening prompt, got %q", writes)
	}
	if len(writes) < 2 || !strings.HasPrefix(writes[1], "TASK_ID=t1") {
		t.Fatalf("expected built-in review prompt, got %q", writes)
	}
}

func TestRunRejectsBrokenPromptOverride(t *testing.T) {
	te := newTestEnv(t, oneRoundAgents("t1"), "")
	promptDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(promptDir, "review.tmpl"), []byte("{{.Missing}}"), 0o644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	te.vars["POLI_PROMPT_DIR"] = promptDir

	code := runRun([]string{"--config", te.config, "--task", "list files", "--task-id", "t1"}, te.env)
	if code != cli.ExitUsage {
		t.Fatalf("expected usage exit, got %d", code)
	}
	if !strings.Contains(te.stderr.String(), "review.tmpl") {
		t.Fatalf("expected the broken file to be named, got %q", te.stderr.String())
	}
}
