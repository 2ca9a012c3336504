package rpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cuetimer/go/internal/presence"
	"github.com/mcdev12/cuetimer/go/internal/room"
)

// Service implements the RoomService on top of a room registry
type Service struct {
	registry *room.Registry
	clock    room.Clock
}

// NewService creates a new room RPC service
func NewService(registry *room.Registry, clock room.Clock) *Service {
	return &Service{
		registry: registry,
		clock:    clock,
	}
}

// Verify that Service implements the RoomServiceHandler interface
var _ RoomServiceHandler = (*Service)(nil)

// CreateRoom creates an empty room under a fresh code
func (s *Service) CreateRoom(ctx context.Context, req *connect.Request[CreateRoomRequest]) (*connect.Response[CreateRoomResponse], error) {
	rm, err := s.registry.CreateOrGetRoom(ctx, "")
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&CreateRoomResponse{Room: rm}), nil
}

// JoinRoom joins a participant, creating the room when no code is given
func (s *Service) JoinRoom(ctx context.Context, req *connect.Request[JoinRoomRequest]) (*connect.Response[JoinRoomResponse], error) {
	_, sess, state, err := s.registry.JoinRoom(ctx, req.Msg.Code, presence.JoinRequest{
		ParticipantID: req.Msg.ParticipantID,
		Token:         req.Msg.Token,
		Name:          req.Msg.Name,
		DeviceType:    req.Msg.DeviceType,
		AsController:  req.Msg.AsController,
	})
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&JoinRoomResponse{Participant: sess.Participant, Token: sess.Token, State: state}), nil
}

// Apply runs a controller operation
func (s *Service) Apply(ctx context.Context, req *connect.Request[ApplyRequest]) (*connect.Response[ApplyResponse], error) {
	actor, err := s.registry.Get(req.Msg.Code)
	if err != nil {
		return nil, connectError(err)
	}
	state, err := actor.Apply(ctx, req.Msg.Operation)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&ApplyResponse{State: state}), nil
}

// Leave removes a participant from a room
func (s *Service) Leave(ctx context.Context, req *connect.Request[LeaveRequest]) (*connect.Response[LeaveResponse], error) {
	actor, err := s.registry.Get(req.Msg.Code)
	if err != nil {
		return nil, connectError(err)
	}
	if err := actor.Leave(ctx, req.Msg.ParticipantID, req.Msg.Token); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&LeaveResponse{}), nil
}

// Heartbeat keeps a participant connected
func (s *Service) Heartbeat(ctx context.Context, req *connect.Request[HeartbeatRequest]) (*connect.Response[HeartbeatResponse], error) {
	actor, err := s.registry.Get(req.Msg.Code)
	if err != nil {
		return nil, connectError(err)
	}
	if err := actor.Heartbeat(ctx, req.Msg.ParticipantID, req.Msg.Token); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&HeartbeatResponse{ServerTime: s.clock.Now()}), nil
}

// GetState returns the current snapshot of a room
func (s *Service) GetState(ctx context.Context, req *connect.Request[GetStateRequest]) (*connect.Response[GetStateResponse], error) {
	actor, err := s.registry.Get(req.Msg.Code)
	if err != nil {
		return nil, connectError(err)
	}
	state, err := actor.Snapshot(ctx)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&GetStateResponse{State: state}), nil
}

// ListRooms summarizes every live room
func (s *Service) ListRooms(ctx context.Context, req *connect.Request[ListRoomsRequest]) (*connect.Response[ListRoomsResponse], error) {
	return connect.NewResponse(&ListRoomsResponse{Rooms: s.registry.Rooms(ctx)}), nil
}

// Subscribe streams every snapshot of a room, starting with the current one
func (s *Service) Subscribe(ctx context.Context, req *connect.Request[SubscribeRequest], stream *connect.ServerStream[SubscribeResponse]) error {
	actor, err := s.registry.Get(req.Msg.Code)
	if err != nil {
		return connectError(err)
	}
	sub, err := actor.Subscribe(ctx)
	if err != nil {
		return connectError(err)
	}
	defer sub.Close()

	log.Debug().Str("room_code", actor.Code()).Msg("rpc subscriber attached")
	for state := range sub.C {
		if err := stream.Send(&SubscribeResponse{State: state}); err != nil {
			return err
		}
	}
	return streamEnd(ctx)
}

// SubscribeMessages streams messages as they are sent
func (s *Service) SubscribeMessages(ctx context.Context, req *connect.Request[SubscribeMessagesRequest], stream *connect.ServerStream[SubscribeMessagesResponse]) error {
	actor, err := s.registry.Get(req.Msg.Code)
	if err != nil {
		return connectError(err)
	}
	sub, err := actor.SubscribeMessages(ctx)
	if err != nil {
		return connectError(err)
	}
	defer sub.Close()

	// Flush the response headers so the client sees the stream open even
	// when no message is on screen.
	if err := stream.Send(nil); err != nil {
		return err
	}

	for msg := range sub.C {
		if err := stream.Send(&SubscribeMessagesResponse{Message: msg}); err != nil {
			return err
		}
	}
	return streamEnd(ctx)
}

// streamEnd reports why a subscription channel closed: either the caller
// went away or the room did.
func streamEnd(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	return connectError(room.ErrRoomExpired)
}

// connectError maps room errors onto Connect codes.
func connectError(err error) error {
	switch {
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrRoomExpired):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, room.ErrNotAuthorized):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, room.ErrInvalidOperation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, room.ErrParticipantNotFound):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, room.ErrRoomClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, room.ErrCodeSpaceExhausted):
		return connect.NewError(connect.CodeResourceExhausted, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
