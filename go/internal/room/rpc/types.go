package rpc

import (
	"time"

	"github.com/mcdev12/cuetimer/go/internal/models"
	"github.com/mcdev12/cuetimer/go/internal/room"
)

type CreateRoomRequest struct{}

type CreateRoomResponse struct {
	Room models.Room `json:"room"`
}

type JoinRoomRequest struct {
	// Code is empty to create a new room.
	Code          string `json:"code"`
	Name          string `json:"name"`
	AsController  bool   `json:"as_controller"`
	ParticipantID string `json:"participant_id,omitempty"`
	// Token is required to reconnect as ParticipantID.
	Token      string            `json:"token,omitempty"`
	DeviceType models.DeviceType `json:"device_type,omitempty"`
}

type JoinRoomResponse struct {
	Participant models.Participant `json:"participant"`
	// Token authenticates the participant's later requests. Keep it private.
	Token string           `json:"token"`
	State models.RoomState `json:"state"`
}

type ApplyRequest struct {
	Code      string         `json:"code"`
	Operation room.Operation `json:"operation"`
}

type ApplyResponse struct {
	State models.RoomState `json:"state"`
}

type LeaveRequest struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participant_id"`
	Token         string `json:"token"`
}

type LeaveResponse struct{}

type HeartbeatRequest struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participant_id"`
	Token         string `json:"token"`
}

type HeartbeatResponse struct {
	ServerTime time.Time `json:"server_time"`
}

type GetStateRequest struct {
	Code string `json:"code"`
}

type GetStateResponse struct {
	State models.RoomState `json:"state"`
}

type ListRoomsRequest struct{}

type ListRoomsResponse struct {
	Rooms []models.RoomSummary `json:"rooms"`
}

type SubscribeRequest struct {
	Code string `json:"code"`
}

type SubscribeResponse struct {
	State models.RoomState `json:"state"`
}

type SubscribeMessagesRequest struct {
	Code string `json:"code"`
}

type SubscribeMessagesResponse struct {
	Message models.Message `json:"message"`
}
