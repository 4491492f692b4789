package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool DBTX
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool DBTX) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam with its question count.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT e.id, e.title, e.duration_minutes, e.starts_at, e.ends_at, e.password_hash, e.created_at,
		        (SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id)
		 FROM exams e WHERE e.id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.StartsAt, &e.EndsAt, &e.PasswordHash, &e.CreatedAt, &e.QuestionCount)
	if err != nil {
		return nil, err
	}
	e.PasswordProtected = e.PasswordHash != ""
	return e, nil
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, duration_minutes, starts_at, ends_at, password_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		e.Title, e.DurationMinutes, e.StartsAt, e.EndsAt, e.PasswordHash,
	).Scan(&e.ID, &e.CreatedAt)
}
