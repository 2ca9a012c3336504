package timer

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/mcdev12/cuetimer/go/internal/models"
)

var epoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func at(offset time.Duration) time.Time {
	return epoch.Add(offset)
}

func checkInvariant(t *testing.T, s models.TimerState, step string) {
	t.Helper()
	if s.RemainingMs < 0 || s.RemainingMs > s.DurationMs {
		t.Fatalf("%s: remaining %d outside [0, %d]", step, s.RemainingMs, s.DurationMs)
	}
	if s.ElapsedMs != s.DurationMs-s.RemainingMs {
		t.Fatalf("%s: elapsed %d, want %d", step, s.ElapsedMs, s.DurationMs-s.RemainingMs)
	}
}

func TestPomodoroCompletes(t *testing.T) {
	s := SetTimer(models.NewTimerState(), 25*60_000, "Pomodoro", "")
	s = Start(s, at(0))
	if s.Status != models.TimerStatusRunning {
		t.Fatalf("status = %s, want running", s.Status)
	}

	s, completed, err := Tick(s, at(25*time.Minute))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !completed {
		t.Fatalf("expected completion on the final tick")
	}
	if s.Status != models.TimerStatusCompleted || s.RemainingMs != 0 {
		t.Fatalf("got status %s remaining %d, want completed 0", s.Status, s.RemainingMs)
	}
	if s.Label != "Pomodoro" {
		t.Errorf("label = %q", s.Label)
	}
}

func TestCompletionFiresOnce(t *testing.T) {
	s := Start(SetTimer(models.NewTimerState(), 1000, "", ""), at(0))

	fired := 0
	for i := 0; i < 10; i++ {
		var completed bool
		var err error
		s, completed, err = Tick(s, at(time.Duration(i)*300*time.Millisecond))
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if completed {
			fired++
		}
	}
	if fired != 1 {
		t.Fatalf("completion fired %d times, want 1", fired)
	}

	s = Reset(s)
	s = Start(s, at(10*time.Second))
	_, completed, _ := Tick(s, at(11*time.Second))
	if !completed {
		t.Fatalf("expected completion after reset and restart")
	}
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	s := Start(SetTimer(models.NewTimerState(), 60_000, "", ""), at(0))
	s, _, _ = Tick(s, at(10*time.Second))

	again := Start(s, at(20*time.Second))
	if again.Status != s.Status || again.RemainingMs != s.RemainingMs || !again.StartedAt.Equal(*s.StartedAt) {
		t.Fatalf("start while running changed state: %+v -> %+v", s, again)
	}
	if Remaining(again, at(20*time.Second)) != 40_000 {
		t.Fatalf("remaining = %d, want 40000", Remaining(again, at(20*time.Second)))
	}
}

func TestStartWithZeroDurationIsNoop(t *testing.T) {
	s := Start(models.NewTimerState(), at(0))
	if s.Status != models.TimerStatusIdle {
		t.Fatalf("status = %s, want idle", s.Status)
	}
}

func TestPauseResumeKeepsElapsed(t *testing.T) {
	s := Start(SetTimer(models.NewTimerState(), 60_000, "talk", ""), at(0))
	s = Pause(s, at(15*time.Second))
	if s.Status != models.TimerStatusPaused || s.RemainingMs != 45_000 {
		t.Fatalf("after pause: %s %d", s.Status, s.RemainingMs)
	}

	// a long pause must not eat into the remaining time
	s = Start(s, at(10*time.Minute))
	if got := Remaining(s, at(10*time.Minute+5*time.Second)); got != 40_000 {
		t.Fatalf("remaining after resume = %d, want 40000", got)
	}
	if got := Pause(s, at(10*time.Minute)); got.RemainingMs != 45_000 {
		t.Fatalf("immediate pause remaining = %d, want 45000", got.RemainingMs)
	}
}

func TestPauseWhenNotRunningIsNoop(t *testing.T) {
	s := SetTimer(models.NewTimerState(), 5000, "", "")
	if got := Pause(s, at(time.Second)); got != s {
		t.Fatalf("pause on idle changed state")
	}
}

func TestStopAndReset(t *testing.T) {
	s := Start(SetTimer(models.NewTimerState(), 90_000, "Q&A", ""), at(0))
	s, _, _ = Tick(s, at(30*time.Second))
	cycle := s.Cycle

	reset := Reset(s)
	if reset.Status != models.TimerStatusIdle || reset.RemainingMs != 90_000 || reset.Label != "Q&A" {
		t.Fatalf("reset = %+v", reset)
	}
	if reset.Cycle != cycle+1 {
		t.Errorf("reset cycle = %d, want %d", reset.Cycle, cycle+1)
	}

	stopped := Stop(s)
	if stopped.Status != models.TimerStatusIdle || stopped.RemainingMs != 90_000 || stopped.Label != "" {
		t.Fatalf("stop = %+v", stopped)
	}
	if stopped.DurationMs != 90_000 {
		t.Errorf("stop changed duration to %d", stopped.DurationMs)
	}
}

func TestAddTimeClampsToZero(t *testing.T) {
	tests := []struct {
		name  string
		state models.TimerState
	}{
		{"idle", SetTimer(models.NewTimerState(), 300_000, "", "")},
		{"running", Start(SetTimer(models.NewTimerState(), 300_000, "", ""), at(0))},
		{"paused", Pause(Start(SetTimer(models.NewTimerState(), 600_000, "", ""), at(0)), at(5*time.Minute))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Remaining(tt.state, at(0)); got != 300_000 {
				t.Fatalf("precondition: remaining = %d", got)
			}
			s := AddTime(tt.state, -9_999_999, at(0))
			if s.RemainingMs != 0 || s.DurationMs != 0 {
				t.Fatalf("remaining %d duration %d, want 0 0", s.RemainingMs, s.DurationMs)
			}
			if s.Status != tt.state.Status {
				t.Fatalf("status changed %s -> %s", tt.state.Status, s.Status)
			}
		})
	}
}

func TestAddTimeWhileRunningKeepsElapsed(t *testing.T) {
	s := Start(SetTimer(models.NewTimerState(), 60_000, "", ""), at(0))
	s = AddTime(s, 30_000, at(20*time.Second))
	if s.DurationMs != 90_000 || s.RemainingMs != 70_000 {
		t.Fatalf("duration %d remaining %d, want 90000 70000", s.DurationMs, s.RemainingMs)
	}
	if got := Remaining(s, at(30*time.Second)); got != 60_000 {
		t.Fatalf("remaining at 30s = %d, want 60000", got)
	}
}

func TestAddTimeSaturates(t *testing.T) {
	tests := []struct {
		name  string
		state models.TimerState
	}{
		{"idle", SetTimer(models.NewTimerState(), 300_000, "", "")},
		{"running", Start(SetTimer(models.NewTimerState(), 300_000, "", ""), at(0))},
		{"paused", Pause(Start(SetTimer(models.NewTimerState(), 600_000, "", ""), at(0)), at(5*time.Minute))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := AddTime(tt.state, math.MaxInt64, at(0))
			if s.DurationMs != models.MaxTimerDurationMs {
				t.Fatalf("duration = %d, want %d", s.DurationMs, int64(models.MaxTimerDurationMs))
			}
			checkInvariant(t, s, "add max")
			if s.RemainingMs <= 300_000 {
				t.Fatalf("remaining = %d, want extended", s.RemainingMs)
			}

			s = AddTime(s, math.MinInt64, at(0))
			if s.DurationMs != 0 || s.RemainingMs != 0 {
				t.Fatalf("remaining %d duration %d, want 0 0", s.RemainingMs, s.DurationMs)
			}
		})
	}
}

func TestTickClockSkew(t *testing.T) {
	s := Start(SetTimer(models.NewTimerState(), 60_000, "", ""), at(10*time.Second))
	next, completed, err := Tick(s, at(0))
	if err != ErrClockSkew {
		t.Fatalf("err = %v, want ErrClockSkew", err)
	}
	if completed || next.RemainingMs != s.RemainingMs {
		t.Fatalf("state changed on skewed tick")
	}
}

func TestCountupReportsElapsed(t *testing.T) {
	s := Start(SetTimer(models.NewTimerState(), 120_000, "", models.TimerTypeCountup), at(0))
	s, _, _ = Tick(s, at(45*time.Second))
	if s.Type != models.TimerTypeCountup || s.ElapsedMs != 45_000 {
		t.Fatalf("type %s elapsed %d", s.Type, s.ElapsedMs)
	}

	s = SetTimer(s, 1000, "", "")
	if s.Type != models.TimerTypeCountup {
		t.Fatalf("empty type should keep countup, got %s", s.Type)
	}
}

func TestRandomOperationsKeepInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := models.NewTimerState()
	now := epoch

	for i := 0; i < 5000; i++ {
		now = now.Add(time.Duration(rng.Intn(5000)) * time.Millisecond)
		var op string
		switch rng.Intn(8) {
		case 0:
			op = "set"
			s = SetTimer(s, rng.Int63n(600_000)-1000, "", "")
		case 1:
			op = "start"
			s = Start(s, now)
		case 2:
			op = "pause"
			s = Pause(s, now)
		case 3:
			op = "stop"
			s = Stop(s)
		case 4:
			op = "reset"
			s = Reset(s)
		case 5:
			op = "add"
			s = AddTime(s, rng.Int63n(2_000_000)-1_000_000, now)
		default:
			op = "tick"
			var err error
			s, _, err = Tick(s, now)
			if err != nil {
				t.Fatalf("step %d: tick: %v", i, err)
			}
		}
		checkInvariant(t, s, op)
	}
}
