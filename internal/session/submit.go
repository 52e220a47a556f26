package session

import (
	"context"
	"time"

	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/scoring"
)

// Trigger records what caused a submit.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerTimer  Trigger = "timer"
)

// SubmitOutcome is the result of the one successful Submit call.
type SubmitOutcome struct {
	Result      model.Result `json:"result"`
	SubmittedAt time.Time    `json:"submitted_at"`
	Trigger     Trigger      `json:"trigger"`
	Notices     []Notice     `json:"notices,omitempty"`
}

// Submit scores and finalizes the attempt. Only the first caller runs; every
// later call, whether from the timer or the student, gets ErrAlreadySubmitted
// without touching scoring or storage.
//
// When the durable write fails the outcome is still returned with a notice,
// and the snapshot is kept with the result inside it.
func (s *Session) Submit(ctx context.Context, trigger Trigger) (*SubmitOutcome, error) {
	if !s.submitted.CompareAndSwap(false, true) {
		return nil, ErrAlreadySubmitted
	}

	if s.opts.Guard != nil {
		ok, err := s.opts.Guard.Acquire(ctx, s.shape.AttemptID)
		if err != nil {
			s.log.Warn().Err(err).Msg("Submit guard unavailable, continuing with local guard")
		} else if !ok {
			s.mu.Lock()
			s.shape.State = model.AttemptSubmitted
			s.mu.Unlock()
			return nil, ErrAlreadySubmitted
		}
	}

	now := s.opts.Clock.Now()

	s.mu.Lock()
	if s.shape.State != model.AttemptInProgress {
		s.mu.Unlock()
		return nil, ErrNotInProgress
	}
	s.shape.State = model.AttemptSubmitting
	answers := make(map[string]int, len(s.sheet.Answers))
	for k, v := range s.sheet.Answers {
		answers[k] = v
	}
	records := s.sheet.Records()
	questions := s.shape.Questions
	s.mu.Unlock()

	out := scoring.Score(s.exam, questions, answers)
	rec := model.AttemptRecord{
		AttemptID:        s.shape.AttemptID,
		ExamID:           s.shape.ExamID,
		StudentID:        s.shape.StudentID,
		Result:           out.Result,
		StartedAt:        s.shape.StartedAt,
		SubmittedAt:      now,
		SelectedSubjects: s.shape.SelectedSubjects,
		QuestionOrder:    s.shape.QuestionOrder(),
	}

	outcome := &SubmitOutcome{Result: out.Result, SubmittedAt: now, Trigger: trigger}

	var finalizeErr error
	if s.opts.Finalizer != nil {
		finalizeErr = s.opts.Finalizer.Finalize(ctx, rec, records)
	}

	s.mu.Lock()
	result := out.Result
	s.shape.State = model.AttemptSubmitted
	s.shape.SubmittedAt = &now
	s.shape.Result = &result
	if finalizeErr != nil {
		s.log.Error().Err(finalizeErr).Str("trigger", string(trigger)).Msg("Failed to persist attempt result")
		outcome.Notices = append(outcome.Notices, Notice{
			Code:    NoticeResultNotSaved,
			Message: "Your answers were submitted but the result could not be saved yet. It will be retried automatically.",
		})
	}
	if finalizeErr != nil || s.opts.Finalizer == nil {
		s.saveShapeLocked(ctx)
		s.saveAnswersLocked(ctx)
	}
	s.mu.Unlock()

	if s.opts.Finalizer != nil && finalizeErr == nil {
		if err := s.opts.Store.ClearAttempt(ctx, s.shape.StudentID, s.shape.ExamID, s.shape.AttemptID); err != nil {
			s.log.Warn().Err(err).Msg("Failed to clear attempt snapshot")
		}
	}

	s.log.Info().
		Str("trigger", string(trigger)).
		Int("correct", result.Correct).
		Int("wrong", result.Wrong).
		Float64("score", result.Score).
		Msg("Attempt submitted")

	return outcome, nil
}

// Submitted reports whether the submit path has been entered.
func (s *Session) Submitted() bool {
	return s.submitted.Load()
}
