package channel

import (
	"strings"
	"sync"

	"politerm/internal/protocol"
)

// Memory keeps both transcripts in memory. Agent output is added with
// Append; instructions sent to a party are recorded and, when OnWrite is set,
// handed to it so a test can script the agent's reply.
type Memory struct {
	mu          sync.Mutex
	transcripts map[protocol.Party][]string
	writes      map[protocol.Party][]string
	interrupts  map[protocol.Party]int
	changes     map[protocol.Party]chan struct{}
	readErr     error

	// OnWrite runs after a write is recorded, outside the lock.
	OnWrite func(party protocol.Party, text string)
}

func NewMemory() *Memory {
	return &Memory{
		transcripts: map[protocol.Party][]string{},
		writes:      map[protocol.Party][]string{},
		interrupts:  map[protocol.Party]int{},
		changes: map[protocol.Party]chan struct{}{
			protocol.Planner:  make(chan struct{}, 1),
			protocol.Executer: make(chan struct{}, 1),
		},
	}
}

func (m *Memory) Write(party protocol.Party, text string) error {
	if err := checkParty(party); err != nil {
		return err
	}
	m.mu.Lock()
	m.writes[party] = append(m.writes[party], text)
	// Typed input is echoed into the transcript like a terminal would.
	m.transcripts[party] = append(m.transcripts[party], SplitLines(text)...)
	hook := m.OnWrite
	m.mu.Unlock()
	m.notify(party)
	if hook != nil {
		hook(party, text)
	}
	return nil
}

func (m *Memory) ReadSnapshot(party protocol.Party, maxLines int) (string, error) {
	if err := checkParty(party); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return "", m.readErr
	}
	lines := m.transcripts[party]
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n"), nil
}

func (m *Memory) Interrupt(party protocol.Party) error {
	if err := checkParty(party); err != nil {
		return err
	}
	m.mu.Lock()
	m.interrupts[party]++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Changes(party protocol.Party) <-chan struct{} {
	return m.changes[party]
}

// Append adds agent output to a party's transcript.
func (m *Memory) Append(party protocol.Party, text string) {
	m.mu.Lock()
	m.transcripts[party] = append(m.transcripts[party], SplitLines(text)...)
	m.mu.Unlock()
	m.notify(party)
}

// SetReadError makes subsequent snapshots fail with err until cleared.
func (m *Memory) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// Writes returns the instructions written to a party, oldest first.
func (m *Memory) Writes(party protocol.Party) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes[party]...)
}

// Interrupts returns how many cancel keystrokes a party received.
func (m *Memory) Interrupts(party protocol.Party) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interrupts[party]
}

func (m *Memory) notify(party protocol.Party) {
	ch, ok := m.changes[party]
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}
