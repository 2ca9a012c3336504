package models

import "time"

// MessageType is the severity of an advisory message.
type MessageType string

const (
	MessageTypeInfo    MessageType = "info"
	MessageTypeWarning MessageType = "warning"
	MessageTypeAlert   MessageType = "alert"
	MessageTypeSuccess MessageType = "success"
)

// Valid reports whether t is one of the known message kinds.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeInfo, MessageTypeWarning, MessageTypeAlert, MessageTypeSuccess:
		return true
	}
	return false
}

// Message is a short-lived advisory pushed from the controller to presenters.
type Message struct {
	ID     string      `json:"id"`
	Text   string      `json:"text"`
	Type   MessageType `json:"type"`
	SentAt time.Time   `json:"sent_at"`
	// DurationMs of zero marks a sticky message that only leaves the active
	// set when dismissed or cleared.
	DurationMs int64 `json:"duration_ms"`
	Dismissed  bool  `json:"dismissed,omitempty"`
}

// ExpiresAt returns when the message leaves the active set, if it ever does.
func (m Message) ExpiresAt() (time.Time, bool) {
	if m.DurationMs <= 0 {
		return time.Time{}, false
	}
	return m.SentAt.Add(time.Duration(m.DurationMs) * time.Millisecond), true
}

// ActiveAt reports whether the message is still displayed at now.
func (m Message) ActiveAt(now time.Time) bool {
	if m.Dismissed {
		return false
	}
	if m.DurationMs <= 0 {
		return true
	}
	return now.Sub(m.SentAt) < time.Duration(m.DurationMs)*time.Millisecond
}
