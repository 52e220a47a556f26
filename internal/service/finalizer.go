package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// finalizer is the submit-path write. Result and answers are written
// directly under a timeout; on failure both are queued for the workers and
// the error is returned so the session keeps its snapshot.
type finalizer struct {
	attempts AttemptStore
	board    Leaderboard
	queue    Queue
	timeout  time.Duration
	log      zerolog.Logger
}

func (f *finalizer) Finalize(ctx context.Context, rec model.AttemptRecord, answers []model.AnswerRecord) error {
	// The write outlives a client that disconnects mid-submit.
	base := context.WithoutCancel(ctx)
	batch := model.AnswerBatch{
		AttemptID: rec.AttemptID,
		ExamID:    rec.ExamID,
		StudentID: rec.StudentID,
		Answers:   answers,
	}

	wctx, cancel := context.WithTimeout(base, f.timeout)
	err := f.write(wctx, rec, batch)
	cancel()

	log := f.log.With().
		Str("exam_id", rec.ExamID.String()).
		Str("student_id", rec.StudentID).
		Str("attempt_id", rec.AttemptID.String()).
		Logger()

	if err != nil {
		log.Warn().Err(err).Msg("Direct result write failed, queueing for retry")
		f.enqueue(base, rec, batch, log)
		return fmt.Errorf("persist attempt: %w", err)
	}

	if f.board != nil {
		bctx, cancel := context.WithTimeout(base, f.timeout)
		if err := f.board.Record(bctx, rec.ExamID, rec.StudentID, rec.Result.Score); err != nil {
			log.Warn().Err(err).Msg("Failed to update leaderboard")
		}
		cancel()
	}
	return nil
}

func (f *finalizer) write(ctx context.Context, rec model.AttemptRecord, batch model.AnswerBatch) error {
	if f.attempts == nil {
		return fmt.Errorf("no attempt store configured")
	}
	if err := f.attempts.RecordResult(ctx, rec); err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	if len(batch.Answers) == 0 {
		return nil
	}
	if err := f.attempts.RecordAnswers(ctx, batch); err != nil {
		return fmt.Errorf("record answers: %w", err)
	}
	return nil
}

func (f *finalizer) enqueue(ctx context.Context, rec model.AttemptRecord, batch model.AnswerBatch, log zerolog.Logger) {
	if f.queue == nil {
		return
	}
	qctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.queue.EnqueueResult(qctx, rec); err != nil {
		log.Error().Err(err).Msg("Failed to queue attempt result")
	}
	if len(batch.Answers) > 0 {
		if err := f.queue.EnqueueAnswers(qctx, batch); err != nil {
			log.Error().Err(err).Msg("Failed to queue attempt answers")
		}
	}
}
