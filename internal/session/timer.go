package session

import (
	"context"
	"time"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// LastMinute is the fixed warning threshold.
const LastMinute = 60 * time.Second

// Warning identifies a one-time countdown warning.
type Warning string

const (
	WarnTenPercent Warning = "TEN_PERCENT_LEFT"
	WarnLastMinute Warning = "LAST_MINUTE"
)

// Remaining is deadline minus now, floored at zero.
func Remaining(deadline, now time.Time) time.Duration {
	d := deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// TickResult is the countdown state at one tick.
type TickResult struct {
	Untimed   bool
	Remaining time.Duration
	Warnings  []Warning
	Expired   bool
	// Finished is set when the attempt was already submitted before this
	// tick, whatever its deadline.
	Finished bool
	// Submit is set on the tick that triggered automatic submission.
	Submit *SubmitOutcome
}

// Tick recomputes the countdown from the stored deadline. Warnings fire at
// most once per attempt; reaching the deadline submits through the same path
// as a manual submit.
func (s *Session) Tick(ctx context.Context) TickResult {
	now := s.opts.Clock.Now()

	s.mu.Lock()
	if s.shape.State == model.AttemptSubmitted {
		s.mu.Unlock()
		return TickResult{Finished: true}
	}
	if s.shape.Deadline == nil {
		s.mu.Unlock()
		return TickResult{Untimed: true}
	}

	res := TickResult{Remaining: Remaining(*s.shape.Deadline, now)}
	res.Expired = res.Remaining == 0

	if s.shape.State == model.AttemptInProgress && !res.Expired {
		fired := false
		if !s.shape.Warned.TenPercent && res.Remaining <= s.shape.Deadline.Sub(s.shape.StartedAt)/10 {
			s.shape.Warned.TenPercent = true
			res.Warnings = append(res.Warnings, WarnTenPercent)
			fired = true
		}
		if !s.shape.Warned.LastMinute && res.Remaining <= LastMinute {
			s.shape.Warned.LastMinute = true
			res.Warnings = append(res.Warnings, WarnLastMinute)
			fired = true
		}
		if fired {
			s.saveShapeLocked(ctx)
		}
	}
	s.mu.Unlock()

	if res.Expired && !s.submitted.Load() {
		if out, err := s.Submit(ctx, TriggerTimer); err == nil {
			res.Submit = out
		}
	}
	return res
}

func (s *Session) expired() bool {
	now := s.opts.Clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shape.Deadline != nil && s.shape.State == model.AttemptInProgress && Remaining(*s.shape.Deadline, now) == 0
}
