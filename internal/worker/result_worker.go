package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWriter persists submitted attempt records.
type ResultWriter interface {
	RecordResults(ctx context.Context, recs []model.AttemptRecord) error
	RecordResult(ctx context.Context, rec model.AttemptRecord) error
}

// SnapshotClearer drops the resumable snapshot of a finished attempt, leaving
// a newer attempt of the same student and exam alone.
type SnapshotClearer interface {
	ClearAttempt(ctx context.Context, studentID string, examID, attemptID uuid.UUID) error
}

// ScoreBoard receives the score of every persisted attempt.
type ScoreBoard interface {
	Record(ctx context.Context, examID uuid.UUID, studentID string, score float64) error
}

// ResultWorker retries result writes the submit path could not complete.
// Once a record lands, the attempt's snapshot is cleared and the leaderboard
// updated.
type ResultWorker struct {
	store     ResultWriter
	snapshots SnapshotClearer
	board     ScoreBoard
	rdb       *redis.Client
	log       zerolog.Logger
}

func NewResultWorker(store ResultWriter, snapshots SnapshotClearer, board ScoreBoard, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		store:     store,
		snapshots: snapshots,
		board:     board,
		rdb:       rdb,
		log:       log.With().Str("component", "result_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]model.AttemptRecord, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p model.AttemptRecord
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, p)
		}
	}
}

// ----------------------------------------------------------------
// Batch upsert wrapper
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []model.AttemptRecord) {
	if len(batch) == 0 {
		return
	}

	err := w.store.RecordResults(ctx, batch)
	if err == nil {
		w.afterPersist(ctx, batch)
		return
	}
	w.log.Warn().Err(err).Int("size", len(batch)).Msg("bulk result upsert failed, using fallback")

	done := make([]model.AttemptRecord, 0, len(batch))
	for _, p := range batch {
		if err := w.store.RecordResult(ctx, p); err != nil {
			w.log.Error().Err(err).Str("attempt_id", p.AttemptID.String()).Msg("RecordResult failed, requeueing")
			requeue(ctx, w.rdb, config.WorkerKey.PersistResultsQueue, p)
			continue
		}
		done = append(done, p)
	}
	w.afterPersist(ctx, done)
}

func (w *ResultWorker) afterPersist(ctx context.Context, recs []model.AttemptRecord) {
	for _, p := range recs {
		if w.snapshots != nil {
			if err := w.snapshots.ClearAttempt(ctx, p.StudentID, p.ExamID, p.AttemptID); err != nil {
				w.log.Warn().Err(err).Str("attempt_id", p.AttemptID.String()).Msg("Failed to clear snapshot")
			}
		}
		if w.board != nil {
			if err := w.board.Record(ctx, p.ExamID, p.StudentID, p.Result.Score); err != nil {
				w.log.Warn().Err(err).Str("attempt_id", p.AttemptID.String()).Msg("Failed to update leaderboard")
			}
		}
	}
}
