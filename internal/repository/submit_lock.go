package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-quiz/internal/config"
)

// SubmitLock is a one-shot Redis lock on finalizing an attempt. The first
// caller wins; the key expires after ttl.
type SubmitLock struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSubmitLock creates a SubmitLock.
func NewSubmitLock(rdb *redis.Client, ttl time.Duration) *SubmitLock {
	return &SubmitLock{rdb: rdb, ttl: ttl}
}

func (l *SubmitLock) Acquire(ctx context.Context, attemptID uuid.UUID) (bool, error) {
	return l.rdb.SetNX(ctx, config.CacheKey.SubmitLockKey(attemptID.String()), time.Now().Unix(), l.ttl).Result()
}
