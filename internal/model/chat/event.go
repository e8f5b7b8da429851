package chat

import "time"

// EventType names a session state transition.
type EventType string

const (
	EventMessageAppended  EventType = "message.appended"
	EventComposingChanged EventType = "composing.changed"
	EventSessionCleared   EventType = "session.cleared"
)

// Event is published after every session transition, in transition order.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Message   *Message  `json:"message,omitempty"`
	Composing bool      `json:"composing"`
	At        time.Time `json:"at"`
}
