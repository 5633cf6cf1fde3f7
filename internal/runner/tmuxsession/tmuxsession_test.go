package tmuxsession

import (
	"errors"
	"reflect"
	"testing"
)

type fakeClient struct {
	hasSession    map[string]bool
	hasSessionErr error
	checked       []string
}

func (f *fakeClient) HasSession(name string) (bool, error) {
	f.checked = append(f.checked, name)
	if f.hasSessionErr != nil {
		return false, f.hasSessionErr
	}
	return f.hasSession[name], nil
}

func TestResolveExplicitTargets(t *testing.T) {
	client := &fakeClient{}
	targets, err := Resolve(client, Options{PlannerTarget: "a:0.0", ExecuterTarget: "b:0.1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if targets.Planner != "a:0.0" || targets.Executer != "b:0.1" {
		t.Fatalf("unexpected targets: %+v", targets)
	}
	if len(client.checked) != 0 {
		t.Fatalf("expected no session lookups, got %v", client.checked)
	}
}

func TestResolveDedicatedSessions(t *testing.T) {
	client := &fakeClient{hasSession: map[string]bool{"planner": true, "executer": true}}
	targets, err := Resolve(client, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if targets.Planner != "planner:tui.0" || targets.Executer != "executer:tui.0" {
		t.Fatalf("unexpected targets: %+v", targets)
	}
}

func TestResolveLegacySession(t *testing.T) {
	client := &fakeClient{hasSession: map[string]bool{"main": true}}
	targets, err := Resolve(client, Options{LegacySession: "main"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if targets.Planner != "main.0" || targets.Executer != "main.1" {
		t.Fatalf("unexpected targets: %+v", targets)
	}
	if !reflect.DeepEqual(targets.Sessions(), []string{"main"}) {
		t.Fatalf("unexpected sessions: %v", targets.Sessions())
	}
}

func TestResolveFallbackWhenNothingRuns(t *testing.T) {
	client := &fakeClient{hasSession: map[string]bool{}}
	targets, err := Resolve(client, Options{PlannerSession: "p", ExecuterSession: "e", Window: "w"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if targets.Planner != "p:w.0" || targets.Executer != "e:w.0" {
		t.Fatalf("unexpected targets: %+v", targets)
	}
}

func TestResolvePropagatesErrors(t *testing.T) {
	client := &fakeClient{hasSessionErr: errors.New("no server")}
	if _, err := Resolve(client, Options{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSessionFromTarget(t *testing.T) {
	cases := map[string]string{
		"planner:tui.0": "planner",
		"main.1":        "main",
		"solo":          "solo",
	}
	for target, expected := range cases {
		if got := SessionFromTarget(target); got != expected {
			t.Fatalf("SessionFromTarget(%q) = %q, want %q", target, got, expected)
		}
	}
}

func TestAllRunning(t *testing.T) {
	client := &fakeClient{hasSession: map[string]bool{"planner": true}}
	ok, err := AllRunning(client, Targets{Planner: "planner:tui.0", Executer: "executer:tui.0"})
	if err != nil || ok {
		t.Fatalf("expected executer session missing, got %v %v", ok, err)
	}
}
