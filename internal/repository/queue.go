package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// Queue pushes durable writes onto the Redis lists drained by the workers.
type Queue struct {
	rdb *redis.Client
}

// NewQueue creates a Queue.
func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func (q *Queue) EnqueueStart(ctx context.Context, start model.AttemptStart) error {
	return q.push(ctx, config.WorkerKey.PersistAttemptStartsQueue, start)
}

func (q *Queue) EnqueueResult(ctx context.Context, rec model.AttemptRecord) error {
	return q.push(ctx, config.WorkerKey.PersistResultsQueue, rec)
}

func (q *Queue) EnqueueAnswers(ctx context.Context, batch model.AnswerBatch) error {
	if len(batch.Answers) == 0 {
		return nil
	}
	return q.push(ctx, config.WorkerKey.PersistAnswersQueue, batch)
}

func (q *Queue) push(ctx context.Context, queue string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", queue, err)
	}
	return q.rdb.RPush(ctx, queue, raw).Err()
}
