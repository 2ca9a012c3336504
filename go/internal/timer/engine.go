// Package timer is the state machine behind a room's shared timer.
//
// Every function is pure: it takes the current state, the operation's
// arguments and the time the operation is applied at, and returns the next
// state. Remaining time is always derived from the absolute start timestamp,
// never decremented, so late or missed ticks cannot accumulate drift.
package timer

import (
	"errors"
	"math"
	"time"

	"github.com/mcdev12/cuetimer/go/internal/models"
)

// ErrClockSkew is returned by Tick when now is earlier than the recorded start.
var ErrClockSkew = errors.New("clock moved backwards")

// SetTimer arms a new timer of durationMs and returns to idle. Valid from any
// state; an in-flight run or completion is discarded. An empty typ keeps the
// current type.
func SetTimer(s models.TimerState, durationMs int64, label string, typ models.TimerType) models.TimerState {
	if !typ.Valid() {
		typ = s.Type
	}
	if !typ.Valid() {
		typ = models.TimerTypeCountdown
	}
	durationMs = max(durationMs, 0)
	return models.TimerState{
		Status:      models.TimerStatusIdle,
		Type:        typ,
		DurationMs:  durationMs,
		RemainingMs: durationMs,
		Label:       label,
		Cycle:       s.Cycle + 1,
	}
}

// Start begins or resumes the timer. It is a no-op while running, after
// completion, or when there is nothing to run.
func Start(s models.TimerState, now time.Time) models.TimerState {
	if s.Status != models.TimerStatusIdle && s.Status != models.TimerStatusPaused {
		return s
	}
	if s.DurationMs == 0 {
		return s
	}
	elapsed := s.DurationMs - s.RemainingMs
	startedAt := now.Add(-ms(elapsed))
	s.Status = models.TimerStatusRunning
	s.StartedAt = &startedAt
	s.CompletedAt = nil
	return withElapsed(s)
}

// Pause freezes the remaining time. No-op unless running.
func Pause(s models.TimerState, now time.Time) models.TimerState {
	if !s.IsRunning() {
		return s
	}
	s.RemainingMs = remainingAt(s, now)
	s.Status = models.TimerStatusPaused
	s.StartedAt = nil
	return withElapsed(s)
}

// Stop returns to idle with the full duration and clears the label.
func Stop(s models.TimerState) models.TimerState {
	s = Reset(s)
	s.Label = ""
	return s
}

// Reset returns to idle with the full duration, keeping the label and
// duration so the same timer can be started again immediately.
func Reset(s models.TimerState) models.TimerState {
	s.Status = models.TimerStatusIdle
	s.RemainingMs = s.DurationMs
	s.StartedAt = nil
	s.CompletedAt = nil
	s.Cycle++
	return withElapsed(s)
}

// AddTime extends (or with a negative delta shortens) the timer without
// changing its status. Time already spent in a running timer is kept.
// Duration stays within [0, models.MaxTimerDurationMs] and remaining within
// [0, duration], however large the delta.
func AddTime(s models.TimerState, deltaMs int64, now time.Time) models.TimerState {
	s.DurationMs = clamp(addSat(s.DurationMs, deltaMs), 0, models.MaxTimerDurationMs)
	switch s.Status {
	case models.TimerStatusRunning:
		s.RemainingMs = remainingAt(s, now)
	case models.TimerStatusCompleted:
		s.RemainingMs = 0
	default:
		s.RemainingMs = clamp(addSat(s.RemainingMs, deltaMs), 0, s.DurationMs)
	}
	return withElapsed(s)
}

// Tick recomputes the remaining time of a running timer. completed is true
// only on the tick that moves the timer to completed; later ticks are no-ops
// until the timer is re-armed. On ErrClockSkew the state is returned unchanged.
func Tick(s models.TimerState, now time.Time) (next models.TimerState, completed bool, err error) {
	if !s.IsRunning() {
		return s, false, nil
	}
	if s.StartedAt != nil && now.Before(*s.StartedAt) {
		return s, false, ErrClockSkew
	}
	s.RemainingMs = remainingAt(s, now)
	if s.RemainingMs == 0 {
		s.Status = models.TimerStatusCompleted
		s.StartedAt = nil
		s.CompletedAt = &now
		completed = true
	}
	return withElapsed(s), completed, nil
}

// Remaining projects the remaining time at now without changing state.
func Remaining(s models.TimerState, now time.Time) int64 {
	if !s.IsRunning() {
		return s.RemainingMs
	}
	return remainingAt(s, now)
}

// NextCompletion returns when a running timer will reach zero.
func NextCompletion(s models.TimerState) (time.Time, bool) {
	if !s.IsRunning() || s.StartedAt == nil {
		return time.Time{}, false
	}
	return s.StartedAt.Add(ms(s.DurationMs)), true
}

func remainingAt(s models.TimerState, now time.Time) int64 {
	if s.StartedAt == nil {
		return clamp(s.RemainingMs, 0, s.DurationMs)
	}
	elapsed := max(now.Sub(*s.StartedAt).Milliseconds(), 0)
	return clamp(s.DurationMs-elapsed, 0, s.DurationMs)
}

func withElapsed(s models.TimerState) models.TimerState {
	s.ElapsedMs = s.DurationMs - s.RemainingMs
	return s
}

func clamp(v, lo, hi int64) int64 {
	return min(max(v, lo), hi)
}

// addSat adds without wrapping around.
func addSat(a, b int64) int64 {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return math.MaxInt64
	case b < 0 && a < math.MinInt64-b:
		return math.MinInt64
	}
	return a + b
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}
