package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// SnapshotStore keeps resumable attempt snapshots in Redis. The shape and
// the answer sheet live under separate keys so answering never rewrites the
// question list.
type SnapshotStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotStore creates a SnapshotStore. A zero ttl keeps keys forever.
func NewSnapshotStore(rdb *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{rdb: rdb, ttl: ttl}
}

func (s *SnapshotStore) LoadShape(ctx context.Context, studentID string, examID uuid.UUID) (*model.AttemptShape, error) {
	var shape model.AttemptShape
	ok, err := s.load(ctx, config.CacheKey.AttemptShapeKey(examID.String(), studentID), &shape)
	if err != nil || !ok {
		return nil, err
	}
	return &shape, nil
}

func (s *SnapshotStore) SaveShape(ctx context.Context, shape *model.AttemptShape) error {
	return s.save(ctx, config.CacheKey.AttemptShapeKey(shape.ExamID.String(), shape.StudentID), shape)
}

func (s *SnapshotStore) LoadAnswers(ctx context.Context, studentID string, examID uuid.UUID) (*model.AnswerSheet, error) {
	var sheet model.AnswerSheet
	ok, err := s.load(ctx, config.CacheKey.AttemptAnswersKey(examID.String(), studentID), &sheet)
	if err != nil || !ok {
		return nil, err
	}
	if sheet.Answers == nil {
		sheet.Answers = make(map[string]int)
	}
	return &sheet, nil
}

func (s *SnapshotStore) SaveAnswers(ctx context.Context, studentID string, examID uuid.UUID, sheet *model.AnswerSheet) error {
	return s.save(ctx, config.CacheKey.AttemptAnswersKey(examID.String(), studentID), sheet)
}

// clearRetries bounds optimistic retries when the shape key changes between
// WATCH and EXEC.
const clearRetries = 3

// ClearAttempt removes both halves of the snapshot of attemptID. The shape
// key is watched, so a newer attempt written in the meantime is never
// deleted. Answers left without a shape are removed.
func (s *SnapshotStore) ClearAttempt(ctx context.Context, studentID string, examID, attemptID uuid.UUID) error {
	shapeKey := config.CacheKey.AttemptShapeKey(examID.String(), studentID)
	answersKey := config.CacheKey.AttemptAnswersKey(examID.String(), studentID)

	clearTx := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, shapeKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("get %s: %w", shapeKey, err)
		default:
			var head struct {
				AttemptID uuid.UUID `json:"attempt_id"`
			}
			if err := json.Unmarshal(data, &head); err != nil {
				return fmt.Errorf("unmarshal %s: %w", shapeKey, err)
			}
			if head.AttemptID != attemptID {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, shapeKey, answersKey)
			return nil
		})
		return err
	}

	for i := 0; i < clearRetries; i++ {
		err := s.rdb.Watch(ctx, clearTx, shapeKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("clear %s: %w", shapeKey, redis.TxFailedErr)
}

func (s *SnapshotStore) load(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *SnapshotStore) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.rdb.Set(ctx, key, data, s.ttl).Err()
}
