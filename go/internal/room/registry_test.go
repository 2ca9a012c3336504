package room

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/cuetimer/go/internal/presence"
)

func newTestRegistry(t *testing.T) (*Registry, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	r, err := NewRegistry(DefaultConfig(), clock, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(r.Close)
	return r, clock
}

func TestCreateOrGetRoom(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	room, err := r.CreateOrGetRoom(ctx, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(room.Code) != DefaultConfig().CodeLength || !ValidCode(room.Code) {
		t.Fatalf("generated code %q", room.Code)
	}

	again, err := r.CreateOrGetRoom(ctx, strings.ToLower(room.Code))
	if err != nil {
		t.Fatalf("get by lowercase code: %v", err)
	}
	if again.Code != room.Code || !again.CreatedAt.Equal(room.CreatedAt) {
		t.Fatalf("got %+v, want %+v", again, room)
	}

	if _, err := r.CreateOrGetRoom(ctx, "ZZZZZZ"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("unknown code: err = %v, want ErrRoomNotFound", err)
	}
	if _, err := r.CreateOrGetRoom(ctx, "no!"); !errors.Is(err, ErrRoomNotFound) || !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("malformed code: err = %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("live rooms = %d, want 1", r.Len())
	}
}

func TestJoinRoomCreatesAndJoins(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	actor, host, state, err := r.JoinRoom(ctx, "", presence.JoinRequest{Name: "host", AsController: true})
	if err != nil {
		t.Fatalf("join new room: %v", err)
	}
	if !host.IsController || len(state.Participants) != 1 {
		t.Fatalf("host = %+v, participants = %d", host, len(state.Participants))
	}

	same, viewer, state, err := r.JoinRoom(ctx, actor.Code(), presence.JoinRequest{Name: "viewer"})
	if err != nil {
		t.Fatalf("join existing room: %v", err)
	}
	if same != actor {
		t.Fatalf("join returned a different actor")
	}
	if viewer.IsController || len(state.Participants) != 2 {
		t.Fatalf("viewer = %+v, participants = %d", viewer, len(state.Participants))
	}
}

func TestIdleRoomExpires(t *testing.T) {
	r, clock := newTestRegistry(t)
	ctx := context.Background()

	actor, host, _, err := r.JoinRoom(ctx, "", presence.JoinRequest{Name: "host", AsController: true})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	code := actor.Code()
	if err := actor.Leave(ctx, host.ID, host.Token); err != nil {
		t.Fatalf("leave: %v", err)
	}

	clock.Advance(time.Hour)
	if n := r.ExpireIdleRooms(ctx); n != 0 {
		t.Fatalf("expired %d rooms before ttl", n)
	}

	clock.Advance(DefaultConfig().IdleTTL)
	if n := r.ExpireIdleRooms(ctx); n != 1 {
		t.Fatalf("expired %d rooms, want 1", n)
	}
	if r.Len() != 0 {
		t.Fatalf("live rooms = %d after expiry", r.Len())
	}

	_, _, _, err = r.JoinRoom(ctx, code, presence.JoinRequest{Name: "late"})
	if !errors.Is(err, ErrRoomExpired) || !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("join expired room: err = %v", err)
	}
	if _, err := actor.Snapshot(ctx); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("expired actor still answering: %v", err)
	}

	// The tombstone itself goes away after another ttl.
	clock.Advance(DefaultConfig().IdleTTL)
	r.ExpireIdleRooms(ctx)
	if _, err := r.Get(code); errors.Is(err, ErrRoomExpired) {
		t.Fatalf("tombstone kept past ttl")
	}
}

func TestRunningRoomIsNotExpired(t *testing.T) {
	r, clock := newTestRegistry(t)
	ctx := context.Background()

	actor, host, _, err := r.JoinRoom(ctx, "", presence.JoinRequest{Name: "host", AsController: true})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := actor.Apply(ctx, SetTimer(host.ID, 99*60*60*1000, "Marathon").WithToken(host.Token)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := actor.Apply(ctx, Start(host.ID).WithToken(host.Token)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := actor.MarkDisconnected(ctx, host.ID, host.Seq); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	clock.Advance(DefaultConfig().IdleTTL + time.Minute)
	if n := r.ExpireIdleRooms(ctx); n != 0 {
		t.Fatalf("running room expired")
	}
	if _, err := r.Get(actor.Code()); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestRoomsSummary(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	for range 3 {
		if _, _, _, err := r.JoinRoom(ctx, "", presence.JoinRequest{Name: "host", AsController: true}); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	rooms := r.Rooms(ctx)
	if len(rooms) != 3 {
		t.Fatalf("rooms = %d, want 3", len(rooms))
	}
	for i, s := range rooms {
		if s.Participants != 1 || s.Connected != 1 {
			t.Errorf("room %s: %+v", s.Code, s)
		}
		if i > 0 && rooms[i-1].Code >= s.Code {
			t.Errorf("rooms not ordered by code")
		}
	}
}

func TestClosedRegistryRejectsRooms(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	r, err := NewRegistry(DefaultConfig(), clock, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	actor, err := r.CreateRoom()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	r.Close()

	if _, err := r.CreateRoom(); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("create after close: err = %v", err)
	}
	select {
	case <-actor.Done():
	default:
		t.Fatalf("actor still running after registry close")
	}
}

func TestCodes(t *testing.T) {
	g, err := NewCodeGenerator(6)
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	seen := make(map[string]bool)
	for range 200 {
		code, err := g.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !ValidCode(code) {
			t.Fatalf("generated invalid code %q", code)
		}
		seen[code] = true
	}
	if len(seen) < 190 {
		t.Errorf("only %d distinct codes out of 200", len(seen))
	}

	if _, err := NewCodeGenerator(2); err == nil {
		t.Errorf("accepted a 2 character code length")
	}
	if got := NormalizeCode("  ab3k9q "); got != "AB3K9Q" {
		t.Errorf("NormalizeCode = %q", got)
	}
	for _, bad := range []string{"", "ABC", "ABCDEFGHJKLMN", "ABC0OI", "abcdef"} {
		if ValidCode(bad) {
			t.Errorf("ValidCode(%q) = true", bad)
		}
	}
}
