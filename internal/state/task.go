// Package state tracks every dialogue task of a run: whose turn it is, the
// round reached and the final outcome.
package state

import (
	"errors"
	"fmt"
	"time"

	"politerm/internal/protocol"
)

var (
	ErrTerminal    = errors.New("task already finished")
	ErrUnknownTask = errors.New("unknown task")
	ErrRoundSkip   = errors.New("round must advance by exactly one")
)

type Status string

const (
	StatusActive         Status = "active"
	StatusExecuting      Status = "executing"
	StatusAwaitingReview Status = "awaiting_review"
	StatusCompleted      Status = "completed"
	StatusTimeout        Status = "timeout"
	StatusExecTimeout    Status = "exec_timeout"
	StatusMaxRounds      Status = "max_rounds"
	StatusInterrupted    Status = "interrupted"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusTimeout, StatusExecTimeout, StatusMaxRounds, StatusInterrupted:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}

type TaskState struct {
	TaskID         string             `json:"task_id" yaml:"task_id"`
	Prompt         string             `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	ExpectedSender protocol.Party     `json:"expected_sender" yaml:"expected_sender"`
	ExpectedKind   protocol.Kind      `json:"expected_kind" yaml:"expected_kind"`
	Round          int                `json:"round" yaml:"round"`
	Status         Status             `json:"status" yaml:"status"`
	CreatedAt      time.Time          `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" yaml:"updated_at"`
	History        []protocol.Message `json:"history,omitempty" yaml:"history,omitempty"`
}

// Transition moves the task to status.
func (t *TaskState) Transition(status Status) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, t.TaskID, t.Status)
	}
	t.Status = status
	return nil
}

// AdvanceRound starts the next round and returns it.
func (t *TaskState) AdvanceRound() int {
	t.Round++
	return t.Round
}

// Expect records who must speak next and with which kind.
func (t *TaskState) Expect(party protocol.Party, kind protocol.Kind) {
	t.ExpectedSender = party
	t.ExpectedKind = kind
}

// Record appends a routed message to the history.
func (t *TaskState) Record(msg protocol.Message) {
	t.History = append(t.History, msg.Clone())
}

// Clone returns a deep copy.
func (t TaskState) Clone() TaskState {
	clone := t
	if t.History != nil {
		clone.History = make([]protocol.Message, len(t.History))
		for i, msg := range t.History {
			clone.History[i] = msg.Clone()
		}
	}
	return clone
}
