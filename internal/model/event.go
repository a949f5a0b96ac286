package model

import "time"

// Event types pushed on the notification stream.
const (
	EventConnected  = "connected"
	EventNewMessage = "new_message"
)

// Event is a single notification stream payload.
type Event struct {
	Type      string   `json:"type"`
	Message   *Message `json:"message,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// NewEvent stamps an event with t in unix milliseconds.
func NewEvent(eventType string, msg *Message, t time.Time) Event {
	return Event{Type: eventType, Message: msg, Timestamp: t.UnixMilli()}
}
