package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

const (
	StartBatchSize    = 50
	StartBatchTimeout = 2 * time.Second
	StartPollTimeout  = 1 * time.Second
)

// StartWriter persists attempt start markers.
type StartWriter interface {
	RecordStarts(ctx context.Context, starts []model.AttemptStart) error
	RecordStart(ctx context.Context, start model.AttemptStart) error
}

// StartWorker drains persist_attempt_starts_queue in batches.
type StartWorker struct {
	store StartWriter
	rdb   *redis.Client
	log   zerolog.Logger
}

func NewStartWorker(store StartWriter, rdb *redis.Client, log zerolog.Logger) *StartWorker {
	return &StartWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "start_worker").Logger(),
	}
}

func (w *StartWorker) Start(ctx context.Context) {
	w.log.Info().Msg("StartWorker started")

	batch := make([]model.AttemptStart, 0, StartBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= StartBatchSize || time.Since(lastFlush) >= StartBatchTimeout) {

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
			item, err := w.rdb.BLPop(ctx, StartPollTimeout, config.WorkerKey.PersistAttemptStartsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p model.AttemptStart
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, p)
		}
	}
}

func (w *StartWorker) flushSafe(ctx context.Context, batch []model.AttemptStart) {
	if len(batch) == 0 {
		return
	}

	if err := w.store.RecordStarts(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("size", len(batch)).Msg("bulk start insert failed, using fallback")

		for _, p := range batch {
			if err := w.store.RecordStart(ctx, p); err != nil {
				w.log.Error().Err(err).Str("attempt_id", p.AttemptID.String()).Msg("RecordStart failed, requeueing")
				requeue(ctx, w.rdb, config.WorkerKey.PersistAttemptStartsQueue, p)
			}
		}
	}
}

// requeue pushes a payload back for a later retry.
func requeue(ctx context.Context, rdb *redis.Client, queue string, v any) {
	if rdb == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	rdb.RPush(ctx, queue, raw)
}
