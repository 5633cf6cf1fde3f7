package event

import (
	"context"
	"sync"
	"testing"
	"time"
)

type countingRecorder struct {
	mu        sync.Mutex
	published map[string]int
	dropped   map[string]int
	unfilter  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{published: map[string]int{}, dropped: map[string]int{}}
}

func (r *countingRecorder) IncEventPublished(_, eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[eventType]++
}

func (r *countingRecorder) IncEventDropped(_, eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[eventType]++
}

func (r *countingRecorder) SetEventSubscriberCounts(_ string, _, unfiltered int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unfilter = unfiltered
}

func readEvent(t *testing.T, ch <-chan DialogueEvent) DialogueEvent {
	t.Helper()
	select {
	case event, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return event
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return DialogueEvent{}
}

func TestBusSubscribePublish(t *testing.T) {
	recorder := newCountingRecorder()
	bus := NewBus[DialogueEvent](context.Background(), BusOptions{Name: "dialogue", Recorder: recorder})
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(NewDialogueEvent(TypeTaskStarted, "t1"))
	event := readEvent(t, ch)
	if event.TaskID != "t1" || event.Type() != TypeTaskStarted {
		t.Fatalf("unexpected event: %#v", event)
	}
	if recorder.published[TypeTaskStarted] != 1 || recorder.unfilter != 1 {
		t.Fatalf("unexpected recorder state: %#v", recorder)
	}
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	recorder := newCountingRecorder()
	bus := NewBus[DialogueEvent](context.Background(), BusOptions{SubscriberBufferSize: 1, Recorder: recorder})
	_, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(NewDialogueEvent(TypeNudgeSent, "t1"))
	bus.Publish(NewDialogueEvent(TypeNudgeSent, "t1"))
	if bus.Dropped() != 1 || recorder.dropped[TypeNudgeSent] != 1 {
		t.Fatalf("expected one drop, got %d", bus.Dropped())
	}
}

func TestBusSubscribeTypes(t *testing.T) {
	bus := NewBus[DialogueEvent](context.Background(), BusOptions{})
	ch, cancel := bus.SubscribeTypes(TypeTaskFinished)
	defer cancel()

	bus.Publish(NewDialogueEvent(TypeTaskStarted, "t1"))
	bus.Publish(NewDialogueEvent(TypeTaskFinished, "t1"))
	if event := readEvent(t, ch); event.Type() != TypeTaskFinished {
		t.Fatalf("unexpected event type %q", event.Type())
	}
}

func TestBusHistoryKeepsNewest(t *testing.T) {
	bus := NewBus[DialogueEvent](context.Background(), BusOptions{HistorySize: 2})
	for _, id := range []string{"a", "b", "c"} {
		bus.Publish(NewDialogueEvent(TypeTaskStarted, id))
	}
	history := bus.DumpHistory()
	if len(history) != 2 || history[0].TaskID != "b" || history[1].TaskID != "c" {
		t.Fatalf("unexpected history: %#v", history)
	}
	if recent := bus.Recent(1); len(recent) != 1 || recent[0].TaskID != "c" {
		t.Fatalf("unexpected recent: %#v", recent)
	}
}

func TestBusContextCancelCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus[DialogueEvent](ctx, BusOptions{})
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("bus did not close")
	}
	bus.Publish(NewDialogueEvent(TypeTaskStarted, "late"))
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus[DialogueEvent](context.Background(), BusOptions{})
	ch, cancel := bus.Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected no subscribers")
	}
	bus.Publish(NewDialogueEvent(TypeTaskStarted, "t1"))
	cancel()
}
