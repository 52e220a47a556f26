package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

const examColumns = `id, title, batch_id, duration_minutes, marks_per_question,
	negative_marks_per_wrong, is_practice, start_at, end_at,
	mandatory_subjects, optional_subjects, total_subjects, number_of_attempts,
	shuffle_questions, question_set_id, subject_names, created_at, updated_at`

// ExamRepository handles exam data access. Reads go through a Redis
// cache-aside layer when a client is configured.
type ExamRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	ttl  time.Duration
	log  zerolog.Logger
}

// NewExamRepository creates a new ExamRepository. rdb may be nil.
func NewExamRepository(pool *pgxpool.Pool, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ExamRepository {
	return &ExamRepository{
		pool: pool,
		rdb:  rdb,
		ttl:  ttl,
		log:  log.With().Str("component", "exam_repository").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	if exam, ok := r.cached(ctx, id); ok {
		return exam, nil
	}

	exam, err := scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}

	r.store(ctx, exam)
	return exam, nil
}

// Create inserts an exam and fills in its generated fields.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	mandatory, optional, names, err := encodeSubjects(e)
	if err != nil {
		return err
	}
	if e.NumberOfAttempts == "" {
		e.NumberOfAttempts = model.AttemptsMultiple
	}

	var setID *string
	if e.QuestionSetID != "" {
		setID = &e.QuestionSetID
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, batch_id, duration_minutes, marks_per_question,
		                    negative_marks_per_wrong, is_practice, start_at, end_at,
		                    mandatory_subjects, optional_subjects, total_subjects,
		                    number_of_attempts, shuffle_questions, question_set_id, subject_names)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.BatchID, e.DurationMinutes, e.MarksPerQuestion,
		e.NegativeMarksPerWrong, e.IsPractice, e.StartAt, e.EndAt,
		mandatory, optional, e.TotalSubjects,
		string(e.NumberOfAttempts), e.ShuffleQuestions, setID, names,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Invalidate drops the cached copy of an exam.
func (r *ExamRepository) Invalidate(ctx context.Context, id uuid.UUID) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Del(ctx, config.CacheKey.ExamConfigKey(id.String())).Err()
}

func (r *ExamRepository) cached(ctx context.Context, id uuid.UUID) (*model.Exam, bool) {
	if r.rdb == nil {
		return nil, false
	}

	data, err := r.rdb.Get(ctx, config.CacheKey.ExamConfigKey(id.String())).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache read failed")
		}
		return nil, false
	}

	var exam model.Exam
	if err := json.Unmarshal(data, &exam); err != nil {
		r.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Corrupt exam cache entry")
		return nil, false
	}
	return &exam, true
}

func (r *ExamRepository) store(ctx context.Context, exam *model.Exam) {
	if r.rdb == nil || r.ttl <= 0 {
		return
	}
	data, err := json.Marshal(exam)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, config.CacheKey.ExamConfigKey(exam.ID.String()), data, r.ttl).Err(); err != nil {
		r.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Exam cache write failed")
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner) (*model.Exam, error) {
	var (
		e                          model.Exam
		policy                     string
		setID                      *string
		mandatory, optional, names []byte
	)
	err := row.Scan(&e.ID, &e.Title, &e.BatchID, &e.DurationMinutes, &e.MarksPerQuestion,
		&e.NegativeMarksPerWrong, &e.IsPractice, &e.StartAt, &e.EndAt,
		&mandatory, &optional, &e.TotalSubjects, &policy,
		&e.ShuffleQuestions, &setID, &names, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.NumberOfAttempts = model.AttemptPolicy(policy)
	if setID != nil {
		e.QuestionSetID = *setID
	}
	if err := decodeJSON(mandatory, &e.MandatorySubjects); err != nil {
		return nil, fmt.Errorf("decode mandatory_subjects: %w", err)
	}
	if err := decodeJSON(optional, &e.OptionalSubjects); err != nil {
		return nil, fmt.Errorf("decode optional_subjects: %w", err)
	}
	if err := decodeJSON(names, &e.SubjectNames); err != nil {
		return nil, fmt.Errorf("decode subject_names: %w", err)
	}
	return &e, nil
}

func encodeSubjects(e *model.Exam) (mandatory, optional, names []byte, err error) {
	if mandatory, err = encodeJSON(e.MandatorySubjects, "[]"); err != nil {
		return nil, nil, nil, err
	}
	if optional, err = encodeJSON(e.OptionalSubjects, "[]"); err != nil {
		return nil, nil, nil, err
	}
	if names, err = encodeJSON(e.SubjectNames, "{}"); err != nil {
		return nil, nil, nil, err
	}
	return mandatory, optional, names, nil
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func encodeJSON(v any, empty string) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return []byte(empty), nil
	}
	return data, nil
}
