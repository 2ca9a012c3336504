package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/mcdev12/cuetimer/go/internal/models"
	"github.com/mcdev12/cuetimer/go/internal/room"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Type      EventType       `json:"type"`
	RequestID string          `json:"request_id,omitempty"` // Echoed back on ack and error
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventType names a frame.
type EventType string

// Server to client.
const (
	EventTypeRoomJoined EventType = "room.joined"
	EventTypeRoomState  EventType = "room.state"
	EventTypeMessageNew EventType = "message.new"
	EventTypeAck        EventType = "ack"
	EventTypeError      EventType = "error"
	EventTypePong       EventType = "pong"
)

// Client to server.
const (
	EventTypeOp    EventType = "op"
	EventTypePing  EventType = "ping"
	EventTypeLeave EventType = "leave"
)

// JoinedPayload is sent once, right after a successful join. Token goes
// only to the joining device, which presents it to reconnect as the same
// participant.
type JoinedPayload struct {
	Participant models.Participant `json:"participant"`
	Token       string             `json:"token"`
	State       models.RoomState   `json:"state"`
}

// AckPayload confirms an operation was applied.
type AckPayload struct {
	Version uint64 `json:"version"`
}

// PongPayload answers a client ping.
type PongPayload struct {
	ServerTime time.Time `json:"server_time"`
}

// ErrorPayload reports a failed request. The connection stays open unless
// the room itself is gone.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorCode is the machine-readable half of an ErrorPayload.
type ErrorCode string

const (
	CodeRoomNotFound        ErrorCode = "ROOM_NOT_FOUND"
	CodeRoomExpired         ErrorCode = "ROOM_EXPIRED"
	CodeRoomClosed          ErrorCode = "ROOM_CLOSED"
	CodeNotAuthorized       ErrorCode = "NOT_AUTHORIZED"
	CodeParticipantNotFound ErrorCode = "PARTICIPANT_NOT_FOUND"
	CodeInvalidOperation    ErrorCode = "INVALID_OPERATION"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeBadRequest          ErrorCode = "BAD_REQUEST"
	CodeInternal            ErrorCode = "INTERNAL"
)

// errorCode maps room errors onto wire codes.
func errorCode(err error) ErrorCode {
	switch {
	case errors.Is(err, room.ErrRoomExpired):
		return CodeRoomExpired
	case errors.Is(err, room.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, room.ErrRoomClosed):
		return CodeRoomClosed
	case errors.Is(err, room.ErrNotAuthorized):
		return CodeNotAuthorized
	case errors.Is(err, room.ErrParticipantNotFound):
		return CodeParticipantNotFound
	case errors.Is(err, room.ErrInvalidOperation):
		return CodeInvalidOperation
	default:
		return CodeInternal
	}
}

func encodeEvent(typ EventType, requestID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, RequestID: requestID, Payload: raw})
}
