package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptShapeKey returns the snapshot key for the shape half of an attempt
func (r *CacheKeyStruct) AttemptShapeKey(examID, studentID string) string {
	return fmt.Sprintf("student:%s:exam:%s:shape", studentID, examID)
}

// AttemptAnswersKey returns the snapshot key for the answer half of an attempt
func (r *CacheKeyStruct) AttemptAnswersKey(examID, studentID string) string {
	return fmt.Sprintf("student:%s:exam:%s:answers", studentID, examID)
}

// SubmitLockKey returns the one-shot submit lock of an attempt
func (r *CacheKeyStruct) SubmitLockKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:submit_lock", attemptID)
}

// ExamConfigKey returns the cache key for an exam's configuration
func (r *CacheKeyStruct) ExamConfigKey(examID string) string {
	return fmt.Sprintf("exam:%s:config", examID)
}

// ExamLeaderboardKey returns the sorted set of best scores for an exam
func (r *CacheKeyStruct) ExamLeaderboardKey(examID string) string {
	return fmt.Sprintf("exam:%s:leaderboard", examID)
}

var CacheKey = NewCacheKeyStruct()
