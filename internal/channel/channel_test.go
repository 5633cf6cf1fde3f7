package channel

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"politerm/internal/logging"
	"politerm/internal/protocol"
	"politerm/internal/runner/tmuxsession"
)

type paneCall struct {
	op     string
	target string
	arg    string
}

type fakeTmux struct {
	mu      sync.Mutex
	calls   []paneCall
	capture string
	err     error
}

func (f *fakeTmux) record(call paneCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeTmux) SendLiteral(target, text string) error {
	return f.record(paneCall{op: "literal", target: target, arg: text})
}

func (f *fakeTmux) SendEnter(target string) error {
	return f.record(paneCall{op: "enter", target: target})
}

func (f *fakeTmux) SendKeys(target string, keys ...string) error {
	return f.record(paneCall{op: "keys", target: target, arg: strings.Join(keys, " ")})
}

func (f *fakeTmux) CapturePaneTail(target string, lines int) ([]byte, error) {
	if err := f.record(paneCall{op: "capture", target: target}); err != nil {
		return nil, err
	}
	return []byte(f.capture), nil
}

func newTestTmux(client *fakeTmux) *Tmux {
	return NewTmux(client, tmuxsession.Targets{Planner: "p:tui.0", Executer: "e:tui.0"}, logging.NewDiscardLogger())
}

func TestTmuxWriteSubmitsEachLine(t *testing.T) {
	client := &fakeTmux{}
	channel := newTestTmux(client)

	if err := channel.Write(protocol.Executer, "first\n\nthird"); err != nil {
		t.Fatalf("write: %v", err)
	}
	expected := []paneCall{
		{op: "literal", target: "e:tui.0", arg: "first"},
		{op: "enter", target: "e:tui.0"},
		{op: "enter", target: "e:tui.0"},
		{op: "literal", target: "e:tui.0", arg: "third"},
		{op: "enter", target: "e:tui.0"},
	}
	if !reflect.DeepEqual(client.calls, expected) {
		t.Fatalf("unexpected calls: %#v", client.calls)
	}
}

func TestTmuxReadSnapshotAndInterrupt(t *testing.T) {
	client := &fakeTmux{capture: "pane text"}
	channel := newTestTmux(client)

	text, err := channel.ReadSnapshot(protocol.Planner, 400)
	if err != nil || text != "pane text" {
		t.Fatalf("unexpected snapshot %q %v", text, err)
	}
	if err := channel.Interrupt(protocol.Planner); err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	last := client.calls[len(client.calls)-1]
	if last.op != "keys" || last.arg != "C-c" || last.target != "p:tui.0" {
		t.Fatalf("unexpected interrupt call: %#v", last)
	}
}

func TestTmuxUnknownParty(t *testing.T) {
	channel := newTestTmux(&fakeTmux{})
	if err := channel.Write(protocol.PartyNone, "x"); !errors.Is(err, ErrUnknownParty) {
		t.Fatalf("expected ErrUnknownParty, got %v", err)
	}
}

func TestMemoryRecordsWritesAndTails(t *testing.T) {
	memory := NewMemory()
	var hooked []string
	memory.OnWrite = func(party protocol.Party, text string) {
		hooked = append(hooked, party.String()+":"+text)
	}

	if err := memory.Write(protocol.Planner, "hello\nworld"); err != nil {
		t.Fatalf("write: %v", err)
	}
	memory.Append(protocol.Planner, "agent reply")

	snapshot, err := memory.ReadSnapshot(protocol.Planner, 2)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot != "world\nagent reply" {
		t.Fatalf("unexpected snapshot %q", snapshot)
	}
	if !reflect.DeepEqual(memory.Writes(protocol.Planner), []string{"hello\nworld"}) {
		t.Fatalf("unexpected writes: %v", memory.Writes(protocol.Planner))
	}
	if !reflect.DeepEqual(hooked, []string{"PLANNER:hello\nworld"}) {
		t.Fatalf("unexpected hook calls: %v", hooked)
	}
	select {
	case <-memory.Changes(protocol.Planner):
	default:
		t.Fatalf("expected change notification")
	}
}

type countingChannel struct {
	mu     sync.Mutex
	active int
	max    int
}

func (c *countingChannel) Write(party protocol.Party, text string) error {
	c.mu.Lock()
	c.active++
	if c.active > c.max {
		c.max = c.active
	}
	c.mu.Unlock()
	for i := 0; i < 1000; i++ {
		_ = i
	}
	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	return nil
}

func (c *countingChannel) ReadSnapshot(protocol.Party, int) (string, error) {
	return "", nil
}

func TestSerializedWritesDoNotOverlap(t *testing.T) {
	inner := &countingChannel{}
	channel := NewSerialized(inner)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = channel.Write(protocol.Executer, "instruction")
		}()
	}
	wg.Wait()
	if inner.max != 1 {
		t.Fatalf("expected serialized writes, saw %d concurrent", inner.max)
	}
	if err := channel.Write(protocol.PartyNone, "x"); !errors.Is(err, ErrUnknownParty) {
		t.Fatalf("expected ErrUnknownParty, got %v", err)
	}
}

func TestTailLines(t *testing.T) {
	if got := TailLines("a\nb\nc\n", 2); got != "b\nc" {
		t.Fatalf("unexpected tail %q", got)
	}
	if got := TailLines("a\nb", 0); got != "a\nb" {
		t.Fatalf("unexpected passthrough %q", got)
	}
}
