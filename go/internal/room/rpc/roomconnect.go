package rpc

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// RoomServiceName is the fully-qualified name of the RoomService service.
const RoomServiceName = "cuetimer.room.v1.RoomService"

// Procedure paths of the RoomService.
const (
	RoomServiceCreateRoomProcedure        = "/cuetimer.room.v1.RoomService/CreateRoom"
	RoomServiceJoinRoomProcedure          = "/cuetimer.room.v1.RoomService/JoinRoom"
	RoomServiceApplyProcedure             = "/cuetimer.room.v1.RoomService/Apply"
	RoomServiceLeaveProcedure             = "/cuetimer.room.v1.RoomService/Leave"
	RoomServiceHeartbeatProcedure         = "/cuetimer.room.v1.RoomService/Heartbeat"
	RoomServiceGetStateProcedure          = "/cuetimer.room.v1.RoomService/GetState"
	RoomServiceListRoomsProcedure         = "/cuetimer.room.v1.RoomService/ListRooms"
	RoomServiceSubscribeProcedure         = "/cuetimer.room.v1.RoomService/Subscribe"
	RoomServiceSubscribeMessagesProcedure = "/cuetimer.room.v1.RoomService/SubscribeMessages"
)

// RoomServiceHandler is the server side of the RoomService.
type RoomServiceHandler interface {
	CreateRoom(context.Context, *connect.Request[CreateRoomRequest]) (*connect.Response[CreateRoomResponse], error)
	JoinRoom(context.Context, *connect.Request[JoinRoomRequest]) (*connect.Response[JoinRoomResponse], error)
	Apply(context.Context, *connect.Request[ApplyRequest]) (*connect.Response[ApplyResponse], error)
	Leave(context.Context, *connect.Request[LeaveRequest]) (*connect.Response[LeaveResponse], error)
	Heartbeat(context.Context, *connect.Request[HeartbeatRequest]) (*connect.Response[HeartbeatResponse], error)
	GetState(context.Context, *connect.Request[GetStateRequest]) (*connect.Response[GetStateResponse], error)
	ListRooms(context.Context, *connect.Request[ListRoomsRequest]) (*connect.Response[ListRoomsResponse], error)
	Subscribe(context.Context, *connect.Request[SubscribeRequest], *connect.ServerStream[SubscribeResponse]) error
	SubscribeMessages(context.Context, *connect.Request[SubscribeMessagesRequest], *connect.ServerStream[SubscribeMessagesResponse]) error
}

// NewRoomServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewRoomServiceHandler(svc RoomServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	createRoom := connect.NewUnaryHandler(RoomServiceCreateRoomProcedure, svc.CreateRoom, opts...)
	joinRoom := connect.NewUnaryHandler(RoomServiceJoinRoomProcedure, svc.JoinRoom, opts...)
	apply := connect.NewUnaryHandler(RoomServiceApplyProcedure, svc.Apply, opts...)
	leave := connect.NewUnaryHandler(RoomServiceLeaveProcedure, svc.Leave, opts...)
	heartbeat := connect.NewUnaryHandler(RoomServiceHeartbeatProcedure, svc.Heartbeat, opts...)
	getState := connect.NewUnaryHandler(RoomServiceGetStateProcedure, svc.GetState, opts...)
	listRooms := connect.NewUnaryHandler(RoomServiceListRoomsProcedure, svc.ListRooms, opts...)
	subscribe := connect.NewServerStreamHandler(RoomServiceSubscribeProcedure, svc.Subscribe, opts...)
	subscribeMessages := connect.NewServerStreamHandler(RoomServiceSubscribeMessagesProcedure, svc.SubscribeMessages, opts...)

	return "/" + RoomServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case RoomServiceCreateRoomProcedure:
			createRoom.ServeHTTP(w, r)
		case RoomServiceJoinRoomProcedure:
			joinRoom.ServeHTTP(w, r)
		case RoomServiceApplyProcedure:
			apply.ServeHTTP(w, r)
		case RoomServiceLeaveProcedure:
			leave.ServeHTTP(w, r)
		case RoomServiceHeartbeatProcedure:
			heartbeat.ServeHTTP(w, r)
		case RoomServiceGetStateProcedure:
			getState.ServeHTTP(w, r)
		case RoomServiceListRoomsProcedure:
			listRooms.ServeHTTP(w, r)
		case RoomServiceSubscribeProcedure:
			subscribe.ServeHTTP(w, r)
		case RoomServiceSubscribeMessagesProcedure:
			subscribeMessages.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// RoomServiceClient is a client for the RoomService.
type RoomServiceClient interface {
	CreateRoom(context.Context, *connect.Request[CreateRoomRequest]) (*connect.Response[CreateRoomResponse], error)
	JoinRoom(context.Context, *connect.Request[JoinRoomRequest]) (*connect.Response[JoinRoomResponse], error)
	Apply(context.Context, *connect.Request[ApplyRequest]) (*connect.Response[ApplyResponse], error)
	Leave(context.Context, *connect.Request[LeaveRequest]) (*connect.Response[LeaveResponse], error)
	Heartbeat(context.Context, *connect.Request[HeartbeatRequest]) (*connect.Response[HeartbeatResponse], error)
	GetState(context.Context, *connect.Request[GetStateRequest]) (*connect.Response[GetStateResponse], error)
	ListRooms(context.Context, *connect.Request[ListRoomsRequest]) (*connect.Response[ListRoomsResponse], error)
	Subscribe(context.Context, *connect.Request[SubscribeRequest]) (*connect.ServerStreamForClient[SubscribeResponse], error)
	SubscribeMessages(context.Context, *connect.Request[SubscribeMessagesRequest]) (*connect.ServerStreamForClient[SubscribeMessagesResponse], error)
}

// NewRoomServiceClient constructs a client for the RoomService at baseURL,
// e.g. http://localhost:8080.
func NewRoomServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) RoomServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &roomServiceClient{
		createRoom:        connect.NewClient[CreateRoomRequest, CreateRoomResponse](httpClient, baseURL+RoomServiceCreateRoomProcedure, opts...),
		joinRoom:          connect.NewClient[JoinRoomRequest, JoinRoomResponse](httpClient, baseURL+RoomServiceJoinRoomProcedure, opts...),
		apply:             connect.NewClient[ApplyRequest, ApplyResponse](httpClient, baseURL+RoomServiceApplyProcedure, opts...),
		leave:             connect.NewClient[LeaveRequest, LeaveResponse](httpClient, baseURL+RoomServiceLeaveProcedure, opts...),
		heartbeat:         connect.NewClient[HeartbeatRequest, HeartbeatResponse](httpClient, baseURL+RoomServiceHeartbeatProcedure, opts...),
		getState:          connect.NewClient[GetStateRequest, GetStateResponse](httpClient, baseURL+RoomServiceGetStateProcedure, opts...),
		listRooms:         connect.NewClient[ListRoomsRequest, ListRoomsResponse](httpClient, baseURL+RoomServiceListRoomsProcedure, opts...),
		subscribe:         connect.NewClient[SubscribeRequest, SubscribeResponse](httpClient, baseURL+RoomServiceSubscribeProcedure, opts...),
		subscribeMessages: connect.NewClient[SubscribeMessagesRequest, SubscribeMessagesResponse](httpClient, baseURL+RoomServiceSubscribeMessagesProcedure, opts...),
	}
}

type roomServiceClient struct {
	createRoom        *connect.Client[CreateRoomRequest, CreateRoomResponse]
	joinRoom          *connect.Client[JoinRoomRequest, JoinRoomResponse]
	apply             *connect.Client[ApplyRequest, ApplyResponse]
	leave             *connect.Client[LeaveRequest, LeaveResponse]
	heartbeat         *connect.Client[HeartbeatRequest, HeartbeatResponse]
	getState          *connect.Client[GetStateRequest, GetStateResponse]
	listRooms         *connect.Client[ListRoomsRequest, ListRoomsResponse]
	subscribe         *connect.Client[SubscribeRequest, SubscribeResponse]
	subscribeMessages *connect.Client[SubscribeMessagesRequest, SubscribeMessagesResponse]
}

func (c *roomServiceClient) CreateRoom(ctx context.Context, req *connect.Request[CreateRoomRequest]) (*connect.Response[CreateRoomResponse], error) {
	return c.createRoom.CallUnary(ctx, req)
}

func (c *roomServiceClient) JoinRoom(ctx context.Context, req *connect.Request[JoinRoomRequest]) (*connect.Response[JoinRoomResponse], error) {
	return c.joinRoom.CallUnary(ctx, req)
}

func (c *roomServiceClient) Apply(ctx context.Context, req *connect.Request[ApplyRequest]) (*connect.Response[ApplyResponse], error) {
	return c.apply.CallUnary(ctx, req)
}

func (c *roomServiceClient) Leave(ctx context.Context, req *connect.Request[LeaveRequest]) (*connect.Response[LeaveResponse], error) {
	return c.leave.CallUnary(ctx, req)
}

func (c *roomServiceClient) Heartbeat(ctx context.Context, req *connect.Request[HeartbeatRequest]) (*connect.Response[HeartbeatResponse], error) {
	return c.heartbeat.CallUnary(ctx, req)
}

func (c *roomServiceClient) GetState(ctx context.Context, req *connect.Request[GetStateRequest]) (*connect.Response[GetStateResponse], error) {
	return c.getState.CallUnary(ctx, req)
}

func (c *roomServiceClient) ListRooms(ctx context.Context, req *connect.Request[ListRoomsRequest]) (*connect.Response[ListRoomsResponse], error) {
	return c.listRooms.CallUnary(ctx, req)
}

func (c *roomServiceClient) Subscribe(ctx context.Context, req *connect.Request[SubscribeRequest]) (*connect.ServerStreamForClient[SubscribeResponse], error) {
	return c.subscribe.CallServerStream(ctx, req)
}

func (c *roomServiceClient) SubscribeMessages(ctx context.Context, req *connect.Request[SubscribeMessagesRequest]) (*connect.ServerStreamForClient[SubscribeMessagesResponse], error) {
	return c.subscribeMessages.CallServerStream(ctx, req)
}
