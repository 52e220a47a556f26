package service

import (
	"context"
	"errors"
	"time"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// authorize requires a signed-in, non-guest student who may see the exam:
// practice exams and exams without a batch are open, otherwise the batch
// must be public or the student enrolled in it. Lookup errors deny access.
func (s *AttemptService) authorize(ctx context.Context, id model.Identity, exam *model.Exam) error {
	if id.StudentID == "" || id.Guest {
		return ErrUnauthorized
	}
	if exam.IsPractice || exam.BatchID == nil {
		return nil
	}

	log := s.log.With().Str("exam_id", exam.ID.String()).Str("student_id", id.StudentID).Logger()

	public, err := s.deps.Enrollment.BatchVisibility(ctx, *exam.BatchID)
	if err != nil {
		log.Warn().Err(err).Msg("Batch visibility lookup failed, denying access")
		return ErrUnauthorized
	}
	if public {
		return nil
	}

	batches, err := s.deps.Enrollment.EnrolledBatchIDs(ctx, id.StudentID)
	if err != nil {
		log.Warn().Err(err).Msg("Enrollment lookup failed, denying access")
		return ErrUnauthorized
	}
	for _, b := range batches {
		if b == *exam.BatchID {
			return nil
		}
	}
	return ErrUnauthorized
}

// checkWindow enforces start_at/end_at unless the exam is practice.
func checkWindow(exam *model.Exam, now time.Time) error {
	if exam.IsPractice {
		return nil
	}
	if exam.StartAt != nil && now.Before(*exam.StartAt) {
		return ErrExamNotStarted
	}
	if exam.EndAt != nil && now.After(*exam.EndAt) {
		return ErrExamEnded
	}
	return nil
}

// startBlock returns the reason a new attempt cannot start now, or nil.
func (s *AttemptService) startBlock(ctx context.Context, exam *model.Exam, studentID string, now time.Time) error {
	if err := checkWindow(exam, now); err != nil {
		return err
	}
	return s.checkAllowance(ctx, exam, studentID)
}

// checkAllowance enforces one_time on non-practice exams. A submitted local
// snapshot counts as a used attempt even before it reaches durable storage.
// When the durable lookup fails and no snapshot says otherwise, the start is
// allowed.
func (s *AttemptService) checkAllowance(ctx context.Context, exam *model.Exam, studentID string) error {
	if exam.IsPractice || exam.NumberOfAttempts != model.AttemptsOneTime {
		return nil
	}

	prior, err := s.deps.Attempts.FetchPrior(ctx, exam.ID, studentID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("exam_id", exam.ID.String()).
			Str("student_id", studentID).
			Msg("Prior attempt lookup failed, falling back to local snapshot")
	} else if prior != nil {
		return ErrAttemptUsed
	}

	shape, err := s.deps.Snapshots.LoadShape(ctx, studentID, exam.ID)
	if err == nil && shape != nil && shape.State == model.AttemptSubmitted {
		return ErrAttemptUsed
	}
	return nil
}

// errorCode names a start refusal for clients.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrExamNotStarted):
		return "EXAM_NOT_STARTED"
	case errors.Is(err, ErrExamEnded):
		return "EXAM_ENDED"
	case errors.Is(err, ErrAttemptUsed):
		return "ATTEMPT_USED"
	case errors.Is(err, ErrResultPending):
		return "RESULT_PENDING"
	default:
		return "UNAVAILABLE"
	}
}
