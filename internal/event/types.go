package event

import "time"

// Event represents a typed event with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

const (
	TypeTaskStarted     = "task_started"
	TypeInstructionSent = "instruction_sent"
	TypeBlockReceived   = "block_received"
	TypeNudgeSent       = "nudge_sent"
	TypeStatusChanged   = "status_changed"
	TypeTaskFinished    = "task_finished"
)

// DialogueEvent describes one step of a task's dialogue.
type DialogueEvent struct {
	EventType  string    `json:"type"`
	TaskID     string    `json:"task_id,omitempty"`
	Party      string    `json:"party,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	Round      int       `json:"round"`
	Status     string    `json:"status,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewDialogueEvent(eventType, taskID string) DialogueEvent {
	return DialogueEvent{
		EventType:  eventType,
		TaskID:     taskID,
		OccurredAt: time.Now().UTC(),
	}
}

func (e DialogueEvent) Type() string {
	return e.EventType
}

func (e DialogueEvent) Timestamp() time.Time {
	return e.OccurredAt
}
