package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// Leaderboard keeps each student's best score per exam in a Redis sorted
// set. Ranks fall back to the attempts table when the set has no entry.
type Leaderboard struct {
	rdb      *redis.Client
	attempts *AttemptRepository
	log      zerolog.Logger
}

// NewLeaderboard creates a Leaderboard. attempts may be nil to disable the
// database fallback.
func NewLeaderboard(rdb *redis.Client, attempts *AttemptRepository, log zerolog.Logger) *Leaderboard {
	return &Leaderboard{
		rdb:      rdb,
		attempts: attempts,
		log:      log.With().Str("component", "leaderboard").Logger(),
	}
}

// Record stores score unless the student already has a higher one.
func (b *Leaderboard) Record(ctx context.Context, examID uuid.UUID, studentID string, score float64) error {
	return b.rdb.ZAddGT(ctx, config.CacheKey.ExamLeaderboardKey(examID.String()), redis.Z{
		Score:  score,
		Member: studentID,
	}).Err()
}

// Rank returns the competition rank of the student: one plus the number of
// students with a strictly higher best score.
func (b *Leaderboard) Rank(ctx context.Context, examID uuid.UUID, studentID string) (*model.Rank, error) {
	key := config.CacheKey.ExamLeaderboardKey(examID.String())

	score, err := b.rdb.ZScore(ctx, key, studentID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			b.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Leaderboard read failed, using database")
		}
		return b.fallback(ctx, examID, studentID, err)
	}

	pipe := b.rdb.Pipeline()
	higher := pipe.ZCount(ctx, key, "("+strconv.FormatFloat(score, 'f', -1, 64), "+inf")
	total := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return b.fallback(ctx, examID, studentID, err)
	}

	return &model.Rank{Rank: int(higher.Val()) + 1, Total: int(total.Val())}, nil
}

func (b *Leaderboard) fallback(ctx context.Context, examID uuid.UUID, studentID string, cause error) (*model.Rank, error) {
	if b.attempts == nil {
		if errors.Is(cause, redis.Nil) {
			return nil, nil
		}
		return nil, cause
	}
	return b.attempts.RankByScore(ctx, examID, studentID)
}
