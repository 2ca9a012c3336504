package rpc

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/cuetimer/go/internal/models"
	"github.com/mcdev12/cuetimer/go/internal/room"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	clock := clockwork.NewRealClock()
	registry, err := room.NewRegistry(room.DefaultConfig(), clock, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle(NewRoomServiceHandler(NewService(registry, clock)))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		registry.Close()
	})
	return srv
}

func newTestClient(t *testing.T) RoomServiceClient {
	t.Helper()
	srv := newTestServer(t)
	return NewRoomServiceClient(srv.Client(), srv.URL)
}

func join(t *testing.T, client RoomServiceClient, code, name string, controller bool) *JoinRoomResponse {
	t.Helper()
	resp, err := client.JoinRoom(context.Background(), connect.NewRequest(&JoinRoomRequest{
		Code:         code,
		Name:         name,
		AsController: controller,
	}))
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return resp.Msg
}

func TestJoinAndApply(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	host := join(t, client, "", "host", true)
	code := host.State.Room.Code

	resp, err := client.Apply(ctx, connect.NewRequest(&ApplyRequest{
		Code:      code,
		Operation: room.SetTimer(host.Participant.ID, 300_000, "Break").WithToken(host.Token),
	}))
	if err != nil {
		t.Fatalf("set timer: %v", err)
	}
	if got := resp.Msg.State.Timer; got.DurationMs != 300_000 || got.Label != "Break" {
		t.Fatalf("timer = %+v", got)
	}

	resp, err = client.Apply(ctx, connect.NewRequest(&ApplyRequest{Code: code, Operation: room.Start(host.Participant.ID).WithToken(host.Token)}))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if resp.Msg.State.Timer.Status != models.TimerStatusRunning {
		t.Fatalf("status = %s", resp.Msg.State.Timer.Status)
	}

	state, err := client.GetState(ctx, connect.NewRequest(&GetStateRequest{Code: code}))
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Msg.State.Room.Code != code {
		t.Fatalf("state for %q, want %q", state.Msg.State.Room.Code, code)
	}

	rooms, err := client.ListRooms(ctx, connect.NewRequest(&ListRoomsRequest{}))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms.Msg.Rooms) != 1 || rooms.Msg.Rooms[0].TimerStatus != models.TimerStatusRunning {
		t.Fatalf("rooms = %+v", rooms.Msg.Rooms)
	}
}

func TestErrorCodes(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.JoinRoom(ctx, connect.NewRequest(&JoinRoomRequest{Code: "ZZZZZZ", Name: "late"}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Fatalf("unknown room: code = %v (%v)", connect.CodeOf(err), err)
	}

	host := join(t, client, "", "host", true)
	code := host.State.Room.Code
	other := join(t, client, code, "x", true)

	_, err = client.Apply(ctx, connect.NewRequest(&ApplyRequest{Code: code, Operation: room.Start(other.Participant.ID).WithToken(other.Token)}))
	if connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Fatalf("non-controller: code = %v (%v)", connect.CodeOf(err), err)
	}

	_, err = client.Apply(ctx, connect.NewRequest(&ApplyRequest{Code: code, Operation: room.SetTimer(host.Participant.ID, -5, "").WithToken(host.Token)}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Fatalf("bad duration: code = %v (%v)", connect.CodeOf(err), err)
	}

	_, err = client.Heartbeat(ctx, connect.NewRequest(&HeartbeatRequest{Code: code, ParticipantID: "ghost"}))
	if connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Fatalf("unknown participant: code = %v (%v)", connect.CodeOf(err), err)
	}
}

func TestParticipantIDAloneGrantsNothing(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	host := join(t, client, "", "host", true)
	code := host.State.Room.Code
	if host.Token == "" {
		t.Fatalf("join returned no token")
	}

	_, err := client.JoinRoom(ctx, connect.NewRequest(&JoinRoomRequest{
		Code:          code,
		Name:          "intruder",
		AsController:  true,
		ParticipantID: host.Participant.ID,
	}))
	if connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Fatalf("rejoin as controller without token: code = %v (%v)", connect.CodeOf(err), err)
	}

	_, err = client.Apply(ctx, connect.NewRequest(&ApplyRequest{Code: code, Operation: room.Start(host.Participant.ID)}))
	if connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Fatalf("apply without token: code = %v (%v)", connect.CodeOf(err), err)
	}
	_, err = client.Leave(ctx, connect.NewRequest(&LeaveRequest{Code: code, ParticipantID: host.Participant.ID, Token: "guess"}))
	if connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Fatalf("leave with wrong token: code = %v (%v)", connect.CodeOf(err), err)
	}

	back, err := client.JoinRoom(ctx, connect.NewRequest(&JoinRoomRequest{
		Code:          code,
		ParticipantID: host.Participant.ID,
		Token:         host.Token,
	}))
	if err != nil {
		t.Fatalf("rejoin with token: %v", err)
	}
	if !back.Msg.Participant.IsController || back.Msg.Participant.Name != "host" {
		t.Fatalf("rejoin = %+v", back.Msg.Participant)
	}
}

func TestSubscribeStreamsSnapshots(t *testing.T) {
	client := newTestClient(t)

	host := join(t, client, "", "host", true)
	code := host.State.Room.Code

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := client.Subscribe(ctx, connect.NewRequest(&SubscribeRequest{Code: code}))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stream.Close()

	if !stream.Receive() {
		t.Fatalf("no initial snapshot: %v", stream.Err())
	}
	if got := stream.Msg().State.Room.Code; got != code {
		t.Fatalf("snapshot for %q", got)
	}

	if _, err := client.Apply(ctx, connect.NewRequest(&ApplyRequest{
		Code:      code,
		Operation: room.SetTimer(host.Participant.ID, 45_000, "Intro").WithToken(host.Token),
	})); err != nil {
		t.Fatalf("apply: %v", err)
	}

	for stream.Receive() {
		if stream.Msg().State.Timer.Label == "Intro" {
			return
		}
	}
	t.Fatalf("stream ended before update: %v", stream.Err())
}

func TestSubscribeMessages(t *testing.T) {
	client := newTestClient(t)

	host := join(t, client, "", "host", true)
	code := host.State.Room.Code

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := client.SubscribeMessages(ctx, connect.NewRequest(&SubscribeMessagesRequest{Code: code}))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stream.Close()

	if _, err := client.Apply(ctx, connect.NewRequest(&ApplyRequest{
		Code:      code,
		Operation: room.SendMessage(host.Participant.ID, "Q&A next", models.MessageTypeInfo, 0).WithToken(host.Token),
	})); err != nil {
		t.Fatalf("send: %v", err)
	}

	if !stream.Receive() {
		t.Fatalf("no message: %v", stream.Err())
	}
	if got := stream.Msg().Message.Text; got != "Q&A next" {
		t.Fatalf("message = %q", got)
	}
}

func TestSubscribeMessagesOpensWithoutMessages(t *testing.T) {
	srv := newTestServer(t)
	client := NewRoomServiceClient(srv.Client(), srv.URL)
	code := join(t, client, "", "host", true).State.Room.Code

	payload, err := json.Marshal(SubscribeMessagesRequest{Code: code})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := make([]byte, 5, 5+len(payload))
	binary.BigEndian.PutUint32(body[1:], uint32(len(payload)))
	body = append(body, payload...)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+RoomServiceSubscribeMessagesProcedure, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/connect+json")

	// Response headers must arrive before any message is sent.
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream did not open: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/connect+json" {
		t.Fatalf("content type = %q", ct)
	}
}
