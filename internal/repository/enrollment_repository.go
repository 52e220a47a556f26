package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// EnrollmentRepository handles batches and the students enrolled in them.
type EnrollmentRepository struct {
	pool *pgxpool.Pool
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

// EnrolledBatchIDs lists the batches a student belongs to.
func (r *EnrollmentRepository) EnrolledBatchIDs(ctx context.Context, studentID string) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT batch_id FROM batch_enrollments WHERE student_id = $1`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BatchVisibility reports whether a batch is public.
func (r *EnrollmentRepository) BatchVisibility(ctx context.Context, batchID uuid.UUID) (bool, error) {
	var public bool
	err := r.pool.QueryRow(ctx, `SELECT is_public FROM batches WHERE id = $1`, batchID).Scan(&public)
	if err != nil {
		return false, notFound(err)
	}
	return public, nil
}

// CreateBatch inserts a batch and sets its id.
func (r *EnrollmentRepository) CreateBatch(ctx context.Context, b *model.Batch) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO batches (name, is_public) VALUES ($1, $2) RETURNING id`,
		b.Name, b.IsPublic,
	).Scan(&b.ID)
}

// Enroll adds students to a batch. Existing enrollments are kept.
func (r *EnrollmentRepository) Enroll(ctx context.Context, batchID uuid.UUID, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO batch_enrollments (batch_id, student_id)
		 SELECT $1, s FROM UNNEST($2::text[]) AS s
		 ON CONFLICT DO NOTHING`,
		batchID, studentIDs,
	)
	return err
}
