package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/model"
)

const questionColumns = `id, set_id, question, options, option1, option2, option3,
	option4, option5, answer, subject, marks, explanation, images, order_num`

// QuestionRepository reads the raw question bank. Records are returned in
// whatever encoding they were stored with.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// FetchBank returns the records matching criteria. Explicit ids win over a
// set id, which wins over an exam id. Empty criteria select nothing.
func (r *QuestionRepository) FetchBank(ctx context.Context, c model.BankCriteria) ([]model.RawQuestion, error) {
	var (
		where string
		arg   any
	)
	switch {
	case len(c.IDs) > 0:
		where, arg = `id = ANY($1)`, c.IDs
	case c.SetID != "":
		where, arg = `set_id = $1`, c.SetID
	case c.ExamID != nil:
		where, arg = `exam_id = $1`, *c.ExamID
	default:
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE `+where+` ORDER BY order_num, id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RawQuestion
	for rows.Next() {
		q, err := scanRawQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// InsertBank writes raw records in one batch. Existing ids are overwritten.
func (r *QuestionRepository) InsertBank(ctx context.Context, examID *uuid.UUID, questions []model.RawQuestion) error {
	batch := &pgx.Batch{}
	for _, q := range questions {
		options, err := rawJSON(q.Options)
		if err != nil {
			return fmt.Errorf("question %s options: %w", q.ID, err)
		}
		images, err := rawJSON(q.Images)
		if err != nil {
			return fmt.Errorf("question %s images: %w", q.ID, err)
		}
		batch.Queue(
			`INSERT INTO questions (id, set_id, exam_id, question, options, option1, option2,
			                        option3, option4, option5, answer, subject, marks,
			                        explanation, images, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			 ON CONFLICT (id) DO UPDATE SET
			   set_id = EXCLUDED.set_id, exam_id = EXCLUDED.exam_id,
			   question = EXCLUDED.question, options = EXCLUDED.options,
			   option1 = EXCLUDED.option1, option2 = EXCLUDED.option2,
			   option3 = EXCLUDED.option3, option4 = EXCLUDED.option4,
			   option5 = EXCLUDED.option5, answer = EXCLUDED.answer,
			   subject = EXCLUDED.subject, marks = EXCLUDED.marks,
			   explanation = EXCLUDED.explanation, images = EXCLUDED.images,
			   order_num = EXCLUDED.order_num`,
			q.ID, nullable(q.SetID), examID, q.Text, options,
			nullable(q.Option1), nullable(q.Option2), nullable(q.Option3),
			nullable(q.Option4), nullable(q.Option5),
			textOf(q.Answer), nullable(q.Subject), textOf(q.Marks),
			nullable(q.Explanation), images, q.OrderNum,
		)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

func scanRawQuestion(row rowScanner) (model.RawQuestion, error) {
	var (
		q                               model.RawQuestion
		setID, o1, o2, o3, o4, o5       *string
		answer, subject, marks, explain *string
		options, images                 []byte
	)
	err := row.Scan(&q.ID, &setID, &q.Text, &options, &o1, &o2, &o3, &o4, &o5,
		&answer, &subject, &marks, &explain, &images, &q.OrderNum)
	if err != nil {
		return q, err
	}

	q.SetID = deref(setID)
	q.Option1, q.Option2, q.Option3, q.Option4, q.Option5 = deref(o1), deref(o2), deref(o3), deref(o4), deref(o5)
	q.Subject = deref(subject)
	q.Explanation = deref(explain)
	if answer != nil {
		q.Answer = *answer
	}
	if marks != nil {
		q.Marks = *marks
	}
	if len(options) > 0 {
		q.Options = string(options)
	}
	if len(images) > 0 {
		q.Images = string(images)
	}
	return q, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// textOf renders a loosely typed value into its text column form.
func textOf(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return nullable(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		s := string(data)
		return &s
	}
}

// rawJSON renders a loosely typed value into a jsonb column. Strings are
// assumed to already hold JSON.
func rawJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		if !json.Valid([]byte(t)) {
			return json.Marshal(t)
		}
		return []byte(t), nil
	default:
		return json.Marshal(t)
	}
}
