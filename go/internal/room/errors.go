package room

import (
	"errors"

	"github.com/mcdev12/cuetimer/go/internal/presence"
)

var (
	// ErrRoomNotFound is returned for a code that never belonged to a live room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExpired is returned for a code whose room was removed after idling.
	ErrRoomExpired = errors.New("room expired")
	// ErrRoomClosed is returned by an actor that has shut down.
	ErrRoomClosed = errors.New("room closed")
	// ErrNotAuthorized is returned when a non-controller issues a controller-only operation.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidOperation wraps validation failures of an operation's arguments.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrInvalidCode is returned for a code that cannot be a room code.
	ErrInvalidCode = errors.New("invalid room code")
	// ErrCodeSpaceExhausted is returned when no unused code could be generated.
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique room code")
	// ErrInternal is returned when an operation panicked inside the actor.
	ErrInternal = errors.New("internal room error")

	ErrParticipantNotFound = presence.ErrParticipantNotFound
)

// IsGone reports whether err means the room no longer exists for the caller.
func IsGone(err error) bool {
	return errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrRoomExpired) || errors.Is(err, ErrRoomClosed)
}
