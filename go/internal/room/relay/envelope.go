package relay

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event types carried in the Event-Type header and the envelope.
const (
	EventTypeRoomState   = "RoomState"
	EventTypeMessageSent = "MessageSent"
)

// Envelope wraps every relayed payload.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	RoomCode  string          `json:"roomCode"`
	Version   uint64          `json:"version,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// StateSubject is where snapshots of a room are published.
func StateSubject(prefix, code string) string {
	return fmt.Sprintf("%s.%s.state", prefix, code)
}

// MessageSubject is where new messages of a room are published.
func MessageSubject(prefix, code string) string {
	return fmt.Sprintf("%s.%s.message", prefix, code)
}

// RoomFromSubject extracts the room code from a relay subject.
func RoomFromSubject(prefix, subject string) (string, bool) {
	rest, ok := strings.CutPrefix(subject, prefix+".")
	if !ok {
		return "", false
	}
	code, _, ok := strings.Cut(rest, ".")
	return code, ok && code != ""
}
