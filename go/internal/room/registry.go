package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cuetimer/go/internal/models"
	"github.com/mcdev12/cuetimer/go/internal/presence"
)

// Registry owns one Actor per live room and is the only structure shared
// across rooms.
type Registry struct {
	cfg   Config
	clock Clock
	sink  StateSink
	codes *CodeGenerator

	// Parent context of every actor.
	ctx    context.Context
	cancel context.CancelFunc

	roomsMu sync.RWMutex
	rooms   map[string]*Actor
	// expired remembers recently expired codes so joins can tell
	// "expired" from "never existed".
	expired map[string]time.Time
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, clock Clock, sink StateSink) (*Registry, error) {
	cfg = cfg.withDefaults()
	codes, err := NewCodeGenerator(cfg.CodeLength)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = NopSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:     cfg,
		clock:   clock,
		sink:    sink,
		codes:   codes,
		ctx:     ctx,
		cancel:  cancel,
		rooms:   make(map[string]*Actor),
		expired: make(map[string]time.Time),
	}, nil
}

// CreateRoom starts a new room under a fresh code.
func (r *Registry) CreateRoom() (*Actor, error) {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()

	if r.closed {
		return nil, ErrRoomClosed
	}
	for range codeAttempts {
		code, err := r.codes.Generate()
		if err != nil {
			return nil, err
		}
		if _, taken := r.rooms[code]; taken {
			continue
		}
		if _, taken := r.expired[code]; taken {
			continue
		}
		actor := NewActor(r.ctx, code, r.cfg, r.clock, r.sink)
		r.rooms[code] = actor
		log.Info().Str("room_code", code).Int("live_rooms", len(r.rooms)).Msg("room created")
		return actor, nil
	}
	return nil, ErrCodeSpaceExhausted
}

// Get returns the actor of a live room.
func (r *Registry) Get(code string) (*Actor, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return nil, fmt.Errorf("%w: %w", ErrRoomNotFound, ErrInvalidCode)
	}

	r.roomsMu.RLock()
	defer r.roomsMu.RUnlock()

	if actor, ok := r.rooms[code]; ok {
		return actor, nil
	}
	if _, ok := r.expired[code]; ok {
		return nil, expiredErr(code)
	}
	return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
}

// CreateOrGetRoom creates a room when code is empty and otherwise returns
// the live room with that code.
func (r *Registry) CreateOrGetRoom(ctx context.Context, code string) (models.Room, error) {
	var (
		actor *Actor
		err   error
	)
	if code == "" {
		actor, err = r.CreateRoom()
	} else {
		actor, err = r.Get(code)
	}
	if err != nil {
		return models.Room{}, err
	}
	state, err := actor.Snapshot(ctx)
	if err != nil {
		return models.Room{}, r.closedErr(actor, err)
	}
	return state.Room, nil
}

// JoinRoom joins a participant to the room with the given code, creating a
// room first when code is empty.
func (r *Registry) JoinRoom(ctx context.Context, code string, req presence.JoinRequest) (*Actor, presence.Session, models.RoomState, error) {
	var (
		actor *Actor
		err   error
	)
	if code == "" {
		actor, err = r.CreateRoom()
	} else {
		actor, err = r.Get(code)
	}
	if err != nil {
		return nil, presence.Session{}, models.RoomState{}, err
	}

	sess, state, err := actor.Join(ctx, req)
	if err != nil {
		return nil, presence.Session{}, models.RoomState{}, r.closedErr(actor, err)
	}
	return actor, sess, state, nil
}

// closedErr turns a closed actor into the expired error callers expect.
func (r *Registry) closedErr(actor *Actor, err error) error {
	if errors.Is(err, ErrRoomClosed) {
		return expiredErr(actor.Code())
	}
	return err
}

func expiredErr(code string) error {
	return fmt.Errorf("%w: %w: %s", ErrRoomNotFound, ErrRoomExpired, code)
}

// ExpireIdleRooms removes rooms idle for longer than the configured TTL and
// returns how many were removed.
func (r *Registry) ExpireIdleRooms(ctx context.Context) int {
	r.roomsMu.RLock()
	actors := make([]*Actor, 0, len(r.rooms))
	for _, a := range r.rooms {
		actors = append(actors, a)
	}
	r.roomsMu.RUnlock()

	removed := 0
	for _, a := range actors {
		expired, err := a.tryExpire(ctx, r.cfg.IdleTTL)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if !errors.Is(err, ErrRoomClosed) {
				log.Warn().Err(err).Str("room_code", a.Code()).Msg("failed to check room for expiry")
				continue
			}
			// A dead actor is as good as expired.
			expired = true
		}
		if !expired {
			continue
		}

		r.roomsMu.Lock()
		if r.rooms[a.Code()] == a {
			delete(r.rooms, a.Code())
			r.expired[a.Code()] = r.clock.Now()
		}
		r.roomsMu.Unlock()

		a.Stop()
		removed++
		log.Info().Str("room_code", a.Code()).Msg("room expired")
	}

	now := r.clock.Now()
	r.roomsMu.Lock()
	for code, at := range r.expired {
		if now.Sub(at) >= r.cfg.IdleTTL {
			delete(r.expired, code)
		}
	}
	r.roomsMu.Unlock()

	return removed
}

// Run sweeps for idle rooms until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	log.Info().Dur("sweep_interval", r.cfg.SweepInterval).Dur("idle_ttl", r.cfg.IdleTTL).Msg("room sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room sweeper stopped")
			return nil
		case <-ticker.Chan():
			if n := r.ExpireIdleRooms(ctx); n > 0 {
				log.Info().Int("expired", n).Int("live_rooms", r.Len()).Msg("idle rooms swept")
			}
		}
	}
}

// Rooms summarizes every live room, ordered by code.
func (r *Registry) Rooms(ctx context.Context) []models.RoomSummary {
	r.roomsMu.RLock()
	actors := make([]*Actor, 0, len(r.rooms))
	for _, a := range r.rooms {
		actors = append(actors, a)
	}
	r.roomsMu.RUnlock()

	out := make([]models.RoomSummary, 0, len(actors))
	for _, a := range actors {
		info, err := a.Info(ctx)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.roomsMu.RLock()
	defer r.roomsMu.RUnlock()
	return len(r.rooms)
}

// Close stops every room. The registry rejects new rooms afterwards.
func (r *Registry) Close() {
	r.roomsMu.Lock()
	r.closed = true
	actors := make([]*Actor, 0, len(r.rooms))
	for code, a := range r.rooms {
		actors = append(actors, a)
		delete(r.rooms, code)
	}
	r.roomsMu.Unlock()

	r.cancel()
	for _, a := range actors {
		<-a.Done()
	}
	log.Info().Int("rooms", len(actors)).Msg("room registry closed")
}
