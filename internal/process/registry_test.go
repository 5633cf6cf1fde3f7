package process

import (
	"context"
	"testing"
)

func TestRegistryTracksAgentsByName(t *testing.T) {
	registry := NewRegistry()
	registry.Track(Agent{Name: "PLANNER", PID: 101})
	registry.Track(Agent{Name: "EXECUTER", PID: 102})
	registry.Track(Agent{Name: "", PID: 103})
	registry.Track(Agent{Name: "ignored", PID: 0})

	names := registry.Names()
	if len(names) != 2 || names[0] != "EXECUTER" || names[1] != "PLANNER" {
		t.Fatalf("unexpected names: %v", names)
	}

	registry.Forget("PLANNER")
	if names := registry.Names(); len(names) != 1 || names[0] != "EXECUTER" {
		t.Fatalf("unexpected names after forget: %v", names)
	}
}

func TestNilRegistryIsInert(t *testing.T) {
	var registry *Registry
	registry.Track(Agent{Name: "PLANNER", PID: 1})
	registry.Forget("PLANNER")
	if names := registry.Names(); names != nil {
		t.Fatalf("expected no names, got %v", names)
	}
	if err := registry.StopAll(context.Background()); err != nil {
		t.Fatalf("stop all: %v", err)
	}
}

func TestStopUnknownAgent(t *testing.T) {
	if err := NewRegistry().Stop(context.Background(), "PLANNER"); err != nil {
		t.Fatalf("stop unknown: %v", err)
	}
}
