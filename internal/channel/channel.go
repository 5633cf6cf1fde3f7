// Package channel is the transport between the orchestrator and the two
// agents: text is written to a party's input and its output transcript is
// read back as a snapshot.
package channel

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"politerm/internal/protocol"
)

var ErrUnknownParty = errors.New("unknown party")

// Channel writes to and reads from the agents. ReadSnapshot returns the most
// recent maxLines logical lines of a party's transcript.
type Channel interface {
	Write(party protocol.Party, text string) error
	ReadSnapshot(party protocol.Party, maxLines int) (string, error)
}

// Interrupter is implemented by channels that can deliver a cancel keystroke
// to an agent.
type Interrupter interface {
	Interrupt(party protocol.Party) error
}

// ChangeNotifier is implemented by channels that can signal new output, so
// a poller may wake before its interval elapses. The returned channel may
// coalesce signals.
type ChangeNotifier interface {
	Changes(party protocol.Party) <-chan struct{}
}

// SplitLines breaks text into the lines submitted one by one to an agent.
func SplitLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(normalized, "\n")
}

// TailLines returns the last maxLines lines of text. A non-positive maxLines
// returns text unchanged.
func TailLines(text string, maxLines int) string {
	if maxLines <= 0 {
		return text
	}
	trimmed := strings.TrimRight(text, "\n")
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= maxLines {
		return trimmed
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n")
}

func checkParty(party protocol.Party) error {
	if !party.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownParty, party)
	}
	return nil
}

// Serialized wraps a Channel so two instructions never interleave their
// lines in one party's input. Reads are not serialized.
type Serialized struct {
	inner Channel
	locks map[protocol.Party]*sync.Mutex
}

func NewSerialized(inner Channel) *Serialized {
	return &Serialized{
		inner: inner,
		locks: map[protocol.Party]*sync.Mutex{
			protocol.Planner:  {},
			protocol.Executer: {},
		},
	}
}

func (s *Serialized) Write(party protocol.Party, text string) error {
	lock, ok := s.locks[party]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParty, party)
	}
	lock.Lock()
	defer lock.Unlock()
	return s.inner.Write(party, text)
}

func (s *Serialized) ReadSnapshot(party protocol.Party, maxLines int) (string, error) {
	return s.inner.ReadSnapshot(party, maxLines)
}

func (s *Serialized) Interrupt(party protocol.Party) error {
	interrupter, ok := s.inner.(Interrupter)
	if !ok {
		return nil
	}
	lock, ok := s.locks[party]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParty, party)
	}
	lock.Lock()
	defer lock.Unlock()
	return interrupter.Interrupt(party)
}

func (s *Serialized) Changes(party protocol.Party) <-chan struct{} {
	if notifier, ok := s.inner.(ChangeNotifier); ok {
		return notifier.Changes(party)
	}
	return nil
}

// Unwrap returns the wrapped channel.
func (s *Serialized) Unwrap() Channel {
	return s.inner
}
