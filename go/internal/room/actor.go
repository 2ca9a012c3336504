package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cuetimer/go/internal/messages"
	"github.com/mcdev12/cuetimer/go/internal/models"
	"github.com/mcdev12/cuetimer/go/internal/presence"
	"github.com/mcdev12/cuetimer/go/internal/timer"
)

// StateSink receives every broadcast of every room. Implementations must not
// block; they are called from the room's own goroutine.
type StateSink interface {
	PublishState(state models.RoomState)
	PublishMessage(code string, msg models.Message)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) PublishState(models.RoomState)         {}
func (NopSink) PublishMessage(string, models.Message) {}

type command struct {
	fn    func() error
	reply chan error
}

// Actor owns a single room. All state is confined to the actor goroutine;
// callers reach it only through the intake channel.
type Actor struct {
	code   string
	cfg    Config
	clock  Clock
	sink   StateSink
	logger zerolog.Logger

	intake chan command
	cancel context.CancelFunc
	done   chan struct{}

	// Everything below is owned by run.
	room      models.Room
	timer     models.TimerState
	presence  *presence.Tracker
	bus       *messages.Bus
	version   uint64
	alert     *models.CompletionAlert
	closing   bool
	nextSubID uint64
	stateSubs map[uint64]*subscriber[models.RoomState]
	msgSubs   map[uint64]*subscriber[models.Message]
	ticker    clockwork.Ticker
	wake      clockwork.Timer
	wakeAt    time.Time
}

// NewActor starts the goroutine for room code. The actor runs until ctx is
// cancelled or Stop is called.
func NewActor(ctx context.Context, code string, cfg Config, clock Clock, sink StateSink) *Actor {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = NopSink{}
	}
	now := clock.Now()
	ctx, cancel := context.WithCancel(ctx)

	a := &Actor{
		code:   code,
		cfg:    cfg,
		clock:  clock,
		sink:   sink,
		logger: log.With().Str("room_code", code).Logger(),
		intake: make(chan command),
		cancel: cancel,
		done:   make(chan struct{}),
		room: models.Room{
			Code:           code,
			CreatedAt:      now,
			LastActivityAt: now,
			Settings:       models.DefaultRoomSettings(),
		},
		timer:     models.NewTimerState(),
		presence:  presence.NewTracker(),
		bus:       messages.NewBus(cfg.MessageHistory),
		stateSubs: make(map[uint64]*subscriber[models.RoomState]),
		msgSubs:   make(map[uint64]*subscriber[models.Message]),
	}
	go a.run(ctx)
	return a
}

// Code returns the room code.
func (a *Actor) Code() string {
	return a.code
}

// Done is closed once the actor goroutine has exited.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

// Stop shuts the actor down and waits for it to exit.
func (a *Actor) Stop() {
	a.cancel()
	<-a.done
}

// do runs fn on the actor goroutine and returns its error.
func (a *Actor) do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case a.intake <- cmd:
	case <-a.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-a.done:
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrRoomClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) run(ctx context.Context) {
	defer a.shutdown()
	a.logger.Debug().Msg("room actor started")

	for {
		a.schedule(a.clock.Now())

		select {
		case <-ctx.Done():
			return
		case cmd := <-a.intake:
			cmd.reply <- a.execute(cmd.fn)
		case <-a.tickChan():
			a.safely("tick", a.onTick)
		case <-a.wakeChan():
			a.wake = nil
			a.wakeAt = time.Time{}
			a.safely("housekeeping", a.onWake)
		}
	}
}

func (a *Actor) shutdown() {
	if a.ticker != nil {
		a.ticker.Stop()
		a.ticker = nil
	}
	if a.wake != nil {
		stopAndDrainTimer(a.wake)
		a.wake = nil
	}
	for id, s := range a.stateSubs {
		close(s.ch)
		delete(a.stateSubs, id)
	}
	for id, s := range a.msgSubs {
		close(s.ch)
		delete(a.msgSubs, id)
	}
	close(a.done)
	a.logger.Debug().Msg("room actor stopped")
}

func (a *Actor) execute(fn func() error) (err error) {
	if a.closing {
		return ErrRoomClosed
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Msg("room command panicked")
			err = ErrInternal
		}
	}()
	return fn()
}

func (a *Actor) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Str("loop", what).Msg("room loop panicked")
		}
	}()
	fn()
}

func (a *Actor) tickChan() <-chan time.Time {
	if a.ticker == nil {
		return nil
	}
	return a.ticker.Chan()
}

func (a *Actor) wakeChan() <-chan time.Time {
	if a.wake == nil {
		return nil
	}
	return a.wake.Chan()
}

// ticking reports whether the room needs a live tick loop.
func (a *Actor) ticking() bool {
	return !a.closing && a.timer.IsRunning() && a.presence.ConnectedCount() > 0
}

// schedule brings the ticker and the housekeeping timer in line with the
// current state.
func (a *Actor) schedule(now time.Time) {
	ticking := a.ticking()
	switch {
	case ticking && a.ticker == nil:
		a.ticker = a.clock.NewTicker(a.cfg.TickInterval)
		a.logger.Debug().Dur("interval", a.cfg.TickInterval).Msg("tick loop started")
	case !ticking && a.ticker != nil:
		a.ticker.Stop()
		a.ticker = nil
		a.logger.Debug().Msg("tick loop stopped")
	}

	at, ok := a.nextDeadline(ticking)
	if !ok {
		if a.wake != nil {
			stopAndDrainTimer(a.wake)
			a.wake = nil
			a.wakeAt = time.Time{}
		}
		return
	}
	if a.wake != nil && a.wakeAt.Equal(at) {
		return
	}
	if a.wake != nil {
		stopAndDrainTimer(a.wake)
	}
	a.wake = a.clock.NewTimer(max(at.Sub(now), 0))
	a.wakeAt = at
}

// nextDeadline is the earliest moment something changes without a command:
// a message expires, a participant times out, or, with no tick loop, the
// timer completes.
func (a *Actor) nextDeadline(ticking bool) (time.Time, bool) {
	var next time.Time
	found := false
	consider := func(t time.Time, ok bool) {
		if ok && (!found || t.Before(next)) {
			next, found = t, true
		}
	}
	consider(a.bus.NextExpiry())
	consider(a.presence.NextDeadline(a.cfg.HeartbeatTimeout, a.cfg.DisconnectGrace))
	if !ticking && !a.closing {
		consider(timer.NextCompletion(a.timer))
	}
	return next, found
}

func (a *Actor) onTick() {
	now := a.clock.Now()
	a.advance(now)
	a.broadcast(now)
}

func (a *Actor) onWake() {
	now := a.clock.Now()
	changed := a.advance(now)
	if a.presence.Sweep(now, a.cfg.HeartbeatTimeout, a.cfg.DisconnectGrace) {
		a.logger.Debug().Int("connected", a.presence.ConnectedCount()).Msg("presence swept")
		changed = true
	}
	if changed {
		a.broadcast(now)
	}
}

// advance catches the timer and the message list up to now. It reports true
// only when the timer completed or a message expired; the countdown itself
// reaches clients through the tick loop.
func (a *Actor) advance(now time.Time) bool {
	changed := false
	if a.timer.IsRunning() {
		next, completed, err := timer.Tick(a.timer, now)
		if err != nil {
			a.logger.Warn().Err(err).Time("now", now).Msg("timer tick skipped")
		} else {
			a.timer = next
			if completed {
				a.onComplete(now)
				changed = true
			}
		}
	}
	if a.bus.Expire(now) {
		changed = true
	}
	return changed
}

func (a *Actor) onComplete(now time.Time) {
	a.alert = &models.CompletionAlert{
		Flash: a.room.Settings.FlashOnComplete,
		Sound: a.room.Settings.SoundEnabled,
		At:    now,
		Cycle: a.timer.Cycle,
	}
	a.room.LastActivityAt = now
	a.logger.Info().
		Str("label", a.timer.Label).
		Int64("duration_ms", a.timer.DurationMs).
		Msg("timer completed")
}

func (a *Actor) snapshot(now time.Time) models.RoomState {
	return models.RoomState{
		Room:           a.room,
		Timer:          a.timer,
		Participants:   a.presence.List(),
		Messages:       a.bus.Active(now),
		RecentMessages: a.bus.Recent(),
		Version:        a.version,
		ServerTime:     now,
	}
}

// broadcast publishes a new version of the room to every subscriber.
// A pending completion alert rides along exactly once.
func (a *Actor) broadcast(now time.Time) models.RoomState {
	a.version++
	state := a.snapshot(now)
	state.Alert = a.alert
	a.alert = nil
	for _, s := range a.stateSubs {
		s.deliver(state)
	}
	a.sink.PublishState(state)
	return state
}

// Apply runs a controller operation and returns the resulting snapshot.
func (a *Actor) Apply(ctx context.Context, op Operation) (models.RoomState, error) {
	var state models.RoomState
	err := a.do(ctx, func() error {
		now := a.clock.Now()
		changed := a.advance(now)
		if err := a.apply(op, now); err != nil {
			if changed {
				a.broadcast(now)
			}
			a.logger.Debug().Err(err).Str("op", string(op.Kind)).Str("participant_id", op.ParticipantID).Msg("operation rejected")
			return err
		}
		state = a.broadcast(now)
		return nil
	})
	return state, err
}

func (a *Actor) apply(op Operation, now time.Time) error {
	if !op.Kind.Valid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidOperation, op.Kind)
	}
	if err := a.authenticate(op.ParticipantID, op.Token); err != nil {
		return err
	}
	if !a.presence.IsController(op.ParticipantID) {
		return ErrNotAuthorized
	}
	// Any accepted command proves the sender is alive.
	_, _ = a.presence.Heartbeat(op.ParticipantID, now)

	switch op.Kind {
	case OpSetTimer:
		if op.DurationMs < 0 || op.DurationMs > models.MaxTimerDurationMs {
			return fmt.Errorf("%w: duration %dms out of range", ErrInvalidOperation, op.DurationMs)
		}
		if op.TimerType != "" && !op.TimerType.Valid() {
			return fmt.Errorf("%w: unknown timer type %q", ErrInvalidOperation, op.TimerType)
		}
		label, err := cleanLabel(op.Label)
		if err != nil {
			return err
		}
		a.timer = timer.SetTimer(a.timer, op.DurationMs, label, op.TimerType)
	case OpStart:
		a.timer = timer.Start(a.timer, now)
	case OpPause:
		a.timer = timer.Pause(a.timer, now)
	case OpStop:
		a.timer = timer.Stop(a.timer)
	case OpReset:
		a.timer = timer.Reset(a.timer)
	case OpAddTime:
		if op.DeltaMs > models.MaxTimerDurationMs-a.timer.DurationMs {
			return fmt.Errorf("%w: duration would exceed %dms", ErrInvalidOperation, int64(models.MaxTimerDurationMs))
		}
		a.timer = timer.AddTime(a.timer, op.DeltaMs, now)
	case OpSendMessage:
		msg, err := a.bus.Send(op.Text, op.MessageType, a.messageDuration(op.DurationMs), now)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
		}
		for _, s := range a.msgSubs {
			s.deliver(msg)
		}
		a.sink.PublishMessage(a.code, msg)
	case OpDismissMessage:
		if err := a.bus.Dismiss(op.MessageID); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
		}
	case OpClearMessages:
		a.bus.Clear()
	case OpUpdateSettings:
		if op.Settings == nil || op.Settings.IsEmpty() {
			return fmt.Errorf("%w: empty settings patch", ErrInvalidOperation)
		}
		a.room.Settings = a.room.Settings.Apply(*op.Settings)
	case OpTransferControl:
		if err := a.presence.Transfer(op.ParticipantID, op.TargetID); err != nil {
			switch {
			case errors.Is(err, presence.ErrNotController):
				return ErrNotAuthorized
			case errors.Is(err, presence.ErrParticipantNotFound):
				return err
			default:
				return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
			}
		}
		a.logger.Info().Str("from", op.ParticipantID).Str("to", op.TargetID).Msg("control transferred")
	}

	a.room.LastActivityAt = now
	return nil
}

// messageDuration resolves how long a new message stays up. An explicit
// duration wins; otherwise the room default applies when auto-dismiss is on.
func (a *Actor) messageDuration(requested int64) int64 {
	if requested > 0 {
		return requested
	}
	if a.room.Settings.MessageAutoDismiss {
		return a.room.Settings.MessageDefaultDuration
	}
	return 0
}

// authenticate resolves the caller of a command. A wrong token is reported
// as ErrNotAuthorized.
func (a *Actor) authenticate(participantID, token string) error {
	err := a.presence.Authenticate(participantID, token)
	if errors.Is(err, presence.ErrInvalidToken) {
		return fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	}
	return err
}

func cleanLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if utf8.RuneCountInString(label) > models.MaxLabelLength {
		return "", fmt.Errorf("%w: label longer than %d characters", ErrInvalidOperation, models.MaxLabelLength)
	}
	return label, nil
}

// Join adds a participant, or reconnects a known one, and returns the
// session for the joining device along with the snapshot that announced it.
// Reconnecting without the participant's token fails with ErrNotAuthorized.
func (a *Actor) Join(ctx context.Context, req presence.JoinRequest) (presence.Session, models.RoomState, error) {
	var (
		sess  presence.Session
		state models.RoomState
	)
	err := a.do(ctx, func() error {
		now := a.clock.Now()
		changed := a.advance(now)
		var err error
		sess, err = a.presence.Join(req, now)
		if err != nil {
			if changed {
				a.broadcast(now)
			}
			a.logger.Warn().Str("participant_id", req.ParticipantID).Msg("reconnect with bad token rejected")
			return fmt.Errorf("%w: %w", ErrNotAuthorized, err)
		}
		a.room.LastActivityAt = now
		state = a.broadcast(now)
		a.logger.Info().
			Str("participant_id", sess.ID).
			Str("name", sess.Name).
			Bool("controller", sess.IsController).
			Bool("reconnected", sess.Reconnected).
			Msg("participant joined")
		return nil
	})
	return sess, state, err
}

// Leave removes a participant for good.
func (a *Actor) Leave(ctx context.Context, participantID, token string) error {
	return a.do(ctx, func() error {
		now := a.clock.Now()
		changed := a.advance(now)
		if err := a.authenticate(participantID, token); err != nil {
			if changed {
				a.broadcast(now)
			}
			return err
		}
		if err := a.presence.Leave(participantID); err != nil {
			return err
		}
		a.room.LastActivityAt = now
		a.broadcast(now)
		a.logger.Info().Str("participant_id", participantID).Msg("participant left")
		return nil
	})
}

// MarkDisconnected flags a participant whose connection dropped. The record
// is kept for the reconnect grace period. seq is the Session.Seq of the
// dropped connection; if the participant has joined again since, the call
// is a no-op.
func (a *Actor) MarkDisconnected(ctx context.Context, participantID string, seq uint64) error {
	return a.do(ctx, func() error {
		now := a.clock.Now()
		changed := a.advance(now)
		if _, ok := a.presence.Get(participantID); ok && !a.presence.Current(participantID, seq) {
			if changed {
				a.broadcast(now)
			}
			a.logger.Debug().Str("participant_id", participantID).Uint64("seq", seq).Msg("stale connection closed")
			return nil
		}
		if err := a.presence.MarkDisconnected(participantID, now); err != nil {
			return err
		}
		a.broadcast(now)
		a.logger.Debug().Str("participant_id", participantID).Msg("participant disconnected")
		return nil
	})
}

// Heartbeat refreshes a participant's liveness.
func (a *Actor) Heartbeat(ctx context.Context, participantID, token string) error {
	return a.do(ctx, func() error {
		now := a.clock.Now()
		changed := a.advance(now)
		if err := a.authenticate(participantID, token); err != nil {
			if changed {
				a.broadcast(now)
			}
			return err
		}
		reconnected, err := a.presence.Heartbeat(participantID, now)
		if err != nil {
			return err
		}
		if changed || reconnected {
			a.broadcast(now)
		}
		return nil
	})
}

// Snapshot returns the current state of the room. It publishes a new
// version only when catching up completed the timer or expired a message.
func (a *Actor) Snapshot(ctx context.Context) (models.RoomState, error) {
	var state models.RoomState
	err := a.do(ctx, func() error {
		now := a.clock.Now()
		if a.advance(now) {
			state = a.broadcast(now)
			return nil
		}
		state = a.snapshot(now)
		return nil
	})
	return state, err
}

// Info returns a summary of the room without broadcasting.
func (a *Actor) Info(ctx context.Context) (models.RoomSummary, error) {
	var info models.RoomSummary
	err := a.do(ctx, func() error {
		info = models.RoomSummary{
			Code:           a.code,
			CreatedAt:      a.room.CreatedAt,
			LastActivityAt: a.room.LastActivityAt,
			Participants:   a.presence.Len(),
			Connected:      a.presence.ConnectedCount(),
			TimerStatus:    a.timer.Status,
			Ticking:        a.ticker != nil,
		}
		return nil
	})
	return info, err
}

// Subscribe streams every snapshot of the room. The current snapshot is
// delivered first.
func (a *Actor) Subscribe(ctx context.Context) (*Subscription[models.RoomState], error) {
	sub := &Subscription[models.RoomState]{actor: a, closed: make(chan struct{})}
	err := a.do(ctx, func() error {
		now := a.clock.Now()
		if a.advance(now) {
			a.broadcast(now)
		}
		s := newSubscriber[models.RoomState](a.cfg.SubscriberBuffer)
		a.nextSubID++
		sub.id = a.nextSubID
		sub.C = s.ch
		a.stateSubs[sub.id] = s
		s.deliver(a.snapshot(now))
		return nil
	})
	if err != nil {
		return nil, err
	}
	go sub.watch(ctx, a.removeStateSub)
	return sub, nil
}

// SubscribeMessages streams messages as they are sent. Messages still on
// screen are delivered first.
func (a *Actor) SubscribeMessages(ctx context.Context) (*Subscription[models.Message], error) {
	sub := &Subscription[models.Message]{actor: a, closed: make(chan struct{})}
	err := a.do(ctx, func() error {
		now := a.clock.Now()
		if a.advance(now) {
			a.broadcast(now)
		}
		s := newSubscriber[models.Message](a.cfg.SubscriberBuffer)
		a.nextSubID++
		sub.id = a.nextSubID
		sub.C = s.ch
		a.msgSubs[sub.id] = s
		for _, m := range a.bus.Active(now) {
			s.deliver(m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	go sub.watch(ctx, a.removeMessageSub)
	return sub, nil
}

func (a *Actor) removeStateSub(id uint64) {
	if s, ok := a.stateSubs[id]; ok {
		delete(a.stateSubs, id)
		close(s.ch)
		if s.dropped > 0 {
			a.logger.Debug().Uint64("dropped", s.dropped).Msg("slow subscriber skipped snapshots")
		}
	}
}

func (a *Actor) removeMessageSub(id uint64) {
	if s, ok := a.msgSubs[id]; ok {
		delete(a.msgSubs, id)
		close(s.ch)
	}
}

// tryExpire marks the room closing when nobody is connected, the timer is
// not running, and nothing happened for ttl. A closing room rejects every
// further command.
func (a *Actor) tryExpire(ctx context.Context, ttl time.Duration) (bool, error) {
	var expired bool
	err := a.do(ctx, func() error {
		now := a.clock.Now()
		if a.advance(now) {
			a.broadcast(now)
		}
		if a.presence.ConnectedCount() > 0 || a.timer.IsRunning() {
			return nil
		}
		if now.Sub(a.room.LastActivityAt) < ttl {
			return nil
		}
		a.closing = true
		expired = true
		return nil
	})
	return expired, err
}
