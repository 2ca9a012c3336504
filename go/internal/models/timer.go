package models

import "time"

const (
	// MaxTimerDurationMs is 99:59:59, the longest duration a display can show.
	MaxTimerDurationMs = (99*3600 + 59*60 + 59) * 1000
	MaxLabelLength     = 120
)

// TimerStatus defines where a room timer is in its lifecycle.
type TimerStatus string

const (
	TimerStatusIdle      TimerStatus = "idle"
	TimerStatusRunning   TimerStatus = "running"
	TimerStatusPaused    TimerStatus = "paused"
	TimerStatusCompleted TimerStatus = "completed"
)

// TimerType defines how a timer is presented. Both types share the same math.
type TimerType string

const (
	TimerTypeCountdown TimerType = "countdown"
	TimerTypeCountup   TimerType = "countup"
)

// Valid reports whether t is a known timer type.
func (t TimerType) Valid() bool {
	return t == TimerTypeCountdown || t == TimerTypeCountup
}

// TimerState is the shared timer of a room.
// Invariant: 0 <= RemainingMs <= DurationMs and ElapsedMs == DurationMs - RemainingMs.
type TimerState struct {
	Status      TimerStatus `json:"status"`
	Type        TimerType   `json:"type"`
	DurationMs  int64       `json:"duration_ms"`
	RemainingMs int64       `json:"remaining_ms"`
	ElapsedMs   int64       `json:"elapsed_ms"`
	Label       string      `json:"label,omitempty"`
	// StartedAt is the virtual start of the current run: now - elapsed.
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Cycle increments every time the timer is re-armed (set, stop, reset).
	Cycle int `json:"cycle"`
}

// NewTimerState returns an idle countdown with nothing to run.
func NewTimerState() TimerState {
	return TimerState{
		Status: TimerStatusIdle,
		Type:   TimerTypeCountdown,
	}
}

// IsRunning reports whether the timer is counting.
func (t TimerState) IsRunning() bool {
	return t.Status == TimerStatusRunning
}
