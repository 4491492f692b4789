package repository

import (
	"context"

	"github.com/stemsi/exstem-session/internal/model"
)

// StudentRepository handles student data access.
type StudentRepository struct {
	pool DBTX
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool DBTX) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetByID retrieves a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id int) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, nisn, name, created_at FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.NISN, &s.Name, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Upsert creates the student or renames the existing one with the same NISN.
func (r *StudentRepository) Upsert(ctx context.Context, s *model.Student) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO students (nisn, name)
		 VALUES ($1, $2)
		 ON CONFLICT (nisn) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, created_at`,
		s.NISN, s.Name,
	).Scan(&s.ID, &s.CreatedAt)
}
