package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// ExamSource loads exam configuration. Missing exams return an error
// matching repository.ErrNotFound.
type ExamSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// QuestionSource loads raw bank records. Empty criteria return nothing.
type QuestionSource interface {
	FetchBank(ctx context.Context, criteria model.BankCriteria) ([]model.RawQuestion, error)
}

// EnrollmentSource answers the batch questions of the access check.
type EnrollmentSource interface {
	EnrolledBatchIDs(ctx context.Context, studentID string) ([]uuid.UUID, error)
	BatchVisibility(ctx context.Context, batchID uuid.UUID) (bool, error)
}

// AttemptStore is the durable attempt record. FetchPrior returns nil, nil
// when the student has no completed attempt.
type AttemptStore interface {
	FetchPrior(ctx context.Context, examID uuid.UUID, studentID string) (*model.PriorAttempt, error)
	RecordResult(ctx context.Context, rec model.AttemptRecord) error
	RecordAnswers(ctx context.Context, batch model.AnswerBatch) error
}

// Leaderboard tracks live standings. Rank returns nil, nil for a student
// without a score.
type Leaderboard interface {
	Record(ctx context.Context, examID uuid.UUID, studentID string, score float64) error
	Rank(ctx context.Context, examID uuid.UUID, studentID string) (*model.Rank, error)
}

// Queue hands writes to background workers.
type Queue interface {
	EnqueueStart(ctx context.Context, start model.AttemptStart) error
	EnqueueResult(ctx context.Context, rec model.AttemptRecord) error
	EnqueueAnswers(ctx context.Context, batch model.AnswerBatch) error
}
