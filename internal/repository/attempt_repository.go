package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// AttemptRepository is the durable record of attempts and their answers.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// RecordStart inserts the in-progress row of an attempt. A row that already
// exists, possibly completed, is left untouched.
func (r *AttemptRepository) RecordStart(ctx context.Context, s model.AttemptStart) error {
	subjects, order := marshalList(s.SelectedSubjects), marshalList(s.QuestionOrder)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempts (id, exam_id, student_id, status, selected_subjects, question_order, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		s.AttemptID, s.ExamID, s.StudentID, string(model.AttemptStatusInProgress), subjects, order, s.StartedAt,
	)
	return err
}

// RecordStarts is the bulk form of RecordStart.
func (r *AttemptRepository) RecordStarts(ctx context.Context, starts []model.AttemptStart) error {
	if len(starts) == 0 {
		return nil
	}

	n := len(starts)
	ids := make([]uuid.UUID, 0, n)
	examIDs := make([]uuid.UUID, 0, n)
	students := make([]string, 0, n)
	subjects := make([][]byte, 0, n)
	orders := make([][]byte, 0, n)
	startedAt := make([]time.Time, 0, n)

	for _, s := range starts {
		ids = append(ids, s.AttemptID)
		examIDs = append(examIDs, s.ExamID)
		students = append(students, s.StudentID)
		subjects = append(subjects, marshalList(s.SelectedSubjects))
		orders = append(orders, marshalList(s.QuestionOrder))
		startedAt = append(startedAt, s.StartedAt)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO attempts (id, exam_id, student_id, status, selected_subjects, question_order, started_at)
		SELECT u.id, u.exam_id, u.student_id, 'IN_PROGRESS', u.ss, u.qo, u.started_at
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::text[],
			$4::jsonb[],
			$5::jsonb[],
			$6::timestamptz[]
		) AS u (id, exam_id, student_id, ss, qo, started_at)
		ON CONFLICT (id) DO NOTHING
	`, ids, examIDs, students, subjects, orders, startedAt)
	return err
}

const upsertResult = `
	INSERT INTO attempts (id, exam_id, student_id, status, selected_subjects, question_order,
	                      score, correct_count, wrong_count, unattempted_count,
	                      valid_question_count, started_at, submitted_at)
	%s
	ON CONFLICT (id) DO UPDATE SET
		status               = 'COMPLETED',
		selected_subjects    = EXCLUDED.selected_subjects,
		question_order       = EXCLUDED.question_order,
		score                = EXCLUDED.score,
		correct_count        = EXCLUDED.correct_count,
		wrong_count          = EXCLUDED.wrong_count,
		unattempted_count    = EXCLUDED.unattempted_count,
		valid_question_count = EXCLUDED.valid_question_count,
		submitted_at         = EXCLUDED.submitted_at,
		updated_at           = NOW()
`

// RecordResult writes the completed row of an attempt, creating it when the
// start marker never landed.
func (r *AttemptRepository) RecordResult(ctx context.Context, rec model.AttemptRecord) error {
	res := rec.Result
	_, err := r.pool.Exec(ctx,
		fmt.Sprintf(upsertResult, `VALUES ($1, $2, $3, 'COMPLETED', $4, $5, $6, $7, $8, $9, $10, $11, $12)`),
		rec.AttemptID, rec.ExamID, rec.StudentID,
		marshalList(rec.SelectedSubjects), marshalList(rec.QuestionOrder),
		res.Score, res.Correct, res.Wrong, res.Unattempted, res.ValidQuestionCount,
		rec.StartedAt, rec.SubmittedAt,
	)
	return err
}

// RecordResults is the bulk form of RecordResult. When an attempt appears
// more than once the last record wins.
func (r *AttemptRepository) RecordResults(ctx context.Context, recs []model.AttemptRecord) error {
	recs = lastPerAttempt(recs)
	if len(recs) == 0 {
		return nil
	}

	n := len(recs)
	ids := make([]uuid.UUID, 0, n)
	examIDs := make([]uuid.UUID, 0, n)
	students := make([]string, 0, n)
	subjects := make([][]byte, 0, n)
	orders := make([][]byte, 0, n)
	scores := make([]float64, 0, n)
	correct := make([]int32, 0, n)
	wrong := make([]int32, 0, n)
	skipped := make([]int32, 0, n)
	valid := make([]int32, 0, n)
	startedAt := make([]time.Time, 0, n)
	submittedAt := make([]time.Time, 0, n)

	for _, rec := range recs {
		ids = append(ids, rec.AttemptID)
		examIDs = append(examIDs, rec.ExamID)
		students = append(students, rec.StudentID)
		subjects = append(subjects, marshalList(rec.SelectedSubjects))
		orders = append(orders, marshalList(rec.QuestionOrder))
		scores = append(scores, rec.Result.Score)
		correct = append(correct, int32(rec.Result.Correct))
		wrong = append(wrong, int32(rec.Result.Wrong))
		skipped = append(skipped, int32(rec.Result.Unattempted))
		valid = append(valid, int32(rec.Result.ValidQuestionCount))
		startedAt = append(startedAt, rec.StartedAt)
		submittedAt = append(submittedAt, rec.SubmittedAt)
	}

	_, err := r.pool.Exec(ctx, fmt.Sprintf(upsertResult, `
		SELECT u.id, u.exam_id, u.student_id, 'COMPLETED', u.ss, u.qo,
		       u.score, u.correct, u.wrong, u.skipped, u.valid, u.started_at, u.submitted_at
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::text[],
			$4::jsonb[],
			$5::jsonb[],
			$6::float8[],
			$7::int[],
			$8::int[],
			$9::int[],
			$10::int[],
			$11::timestamptz[],
			$12::timestamptz[]
		) AS u (id, exam_id, student_id, ss, qo, score, correct, wrong, skipped, valid, started_at, submitted_at)`),
		ids, examIDs, students, subjects, orders, scores, correct, wrong, skipped, valid, startedAt, submittedAt,
	)
	return err
}

// RecordAnswers stores the selections of one attempt. Selections are
// immutable, so rows already present are kept.
func (r *AttemptRepository) RecordAnswers(ctx context.Context, b model.AnswerBatch) error {
	if len(b.Answers) == 0 {
		return nil
	}

	qids := make([]string, 0, len(b.Answers))
	opts := make([]int32, 0, len(b.Answers))
	for _, a := range b.Answers {
		qids = append(qids, a.QuestionID)
		opts = append(opts, int32(a.Option))
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO attempt_answers (attempt_id, question_id, selected_option)
		SELECT $1, u.qid, u.opt
		FROM UNNEST($2::text[], $3::int[]) AS u (qid, opt)
		ON CONFLICT (attempt_id, question_id) DO NOTHING
	`, b.AttemptID, qids, opts)
	return err
}

// FetchPrior returns the student's latest completed attempt with its
// answers, or nil when there is none.
func (r *AttemptRepository) FetchPrior(ctx context.Context, examID uuid.UUID, studentID string) (*model.PriorAttempt, error) {
	var (
		p                              model.PriorAttempt
		subjects, order                []byte
		score                          *float64
		correct, wrong, skipped, valid *int32
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, selected_subjects, question_order, score, correct_count, wrong_count,
		        unattempted_count, valid_question_count, started_at, submitted_at
		 FROM attempts
		 WHERE exam_id = $1 AND student_id = $2 AND status = 'COMPLETED'
		 ORDER BY submitted_at DESC NULLS LAST
		 LIMIT 1`, examID, studentID,
	).Scan(&p.AttemptID, &subjects, &order, &score, &correct, &wrong, &skipped, &valid, &p.StartedAt, &p.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := decodeJSON(subjects, &p.SelectedSubjects); err != nil {
		return nil, err
	}
	if err := decodeJSON(order, &p.QuestionOrder); err != nil {
		return nil, err
	}
	if score != nil {
		p.Result = &model.Result{
			Score:              *score,
			Correct:            intOf(correct),
			Wrong:              intOf(wrong),
			Unattempted:        intOf(skipped),
			ValidQuestionCount: intOf(valid),
		}
	}

	p.Answers, err = r.answers(ctx, p.AttemptID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RankByScore computes a student's competition rank from their best
// completed score. Returns nil when the student has no score.
func (r *AttemptRepository) RankByScore(ctx context.Context, examID uuid.UUID, studentID string) (*model.Rank, error) {
	var rank model.Rank
	err := r.pool.QueryRow(ctx, `
		WITH best AS (
			SELECT student_id, MAX(score) AS score
			FROM attempts
			WHERE exam_id = $1 AND status = 'COMPLETED' AND score IS NOT NULL
			GROUP BY student_id
		), ranked AS (
			SELECT student_id,
			       RANK() OVER (ORDER BY score DESC) AS pos,
			       COUNT(*) OVER () AS total
			FROM best
		)
		SELECT pos, total FROM ranked WHERE student_id = $2
	`, examID, studentID).Scan(&rank.Rank, &rank.Total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rank, nil
}

func (r *AttemptRepository) answers(ctx context.Context, attemptID uuid.UUID) (map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, selected_option FROM attempt_answers WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			qid string
			opt int32
		)
		if err := rows.Scan(&qid, &opt); err != nil {
			return nil, err
		}
		out[qid] = int(opt)
	}
	return out, rows.Err()
}

func lastPerAttempt(recs []model.AttemptRecord) []model.AttemptRecord {
	seen := make(map[uuid.UUID]int, len(recs))
	out := make([]model.AttemptRecord, 0, len(recs))
	for _, rec := range recs {
		if i, ok := seen[rec.AttemptID]; ok {
			out[i] = rec
			continue
		}
		seen[rec.AttemptID] = len(out)
		out = append(out, rec)
	}
	return out
}

func marshalList[T any](v []T) []byte {
	if len(v) == 0 {
		return []byte("[]")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("[]")
	}
	return data
}

func intOf(p *int32) int {
	if p == nil {
		return 0
	}
	return int(*p)
}
