package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
)

// SubmissionRepository handles submission data access.
type SubmissionRepository struct {
	pool DBTX
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool DBTX) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

const submissionColumns = `id, exam_id, student_id, status, current_order, remaining_seconds, score, started_at, submitted_at`

func scanSubmission(row interface{ Scan(...any) error }) (*model.Submission, error) {
	s := &model.Submission{}
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.CurrentOrder,
		&s.RemainingSeconds, &s.Score, &s.StartedAt, &s.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a submission.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
}

// GetByExamAndStudent retrieves the submission of a specific exam-student combination.
func (r *SubmissionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE exam_id = $1 AND student_id = $2`, examID, studentID))
}

// Create inserts a new submission. A concurrent start that already created
// one makes this return pgx.ErrNoRows.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO submissions (exam_id, student_id, status, current_order, remaining_seconds)
		 VALUES ($1, $2, $3, 1, $4)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, status, current_order, started_at`,
		s.ExamID, s.StudentID, model.SubmissionStatusInProgress, s.RemainingSeconds,
	).Scan(&s.ID, &s.Status, &s.CurrentOrder, &s.StartedAt)
}

// SetCurrentOrder records the question the student is looking at.
func (r *SubmissionRepository) SetCurrentOrder(ctx context.Context, id uuid.UUID, order int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE submissions SET current_order = $1 WHERE id = $2 AND status = $3`,
		order, id, model.SubmissionStatusInProgress)
	return err
}

// LowerRemaining stores seconds if it is below the recorded remaining time.
func (r *SubmissionRepository) LowerRemaining(ctx context.Context, id uuid.UUID, seconds int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE submissions SET remaining_seconds = LEAST(remaining_seconds, $1)
		 WHERE id = $2 AND status = $3`,
		seconds, id, model.SubmissionStatusInProgress)
	return err
}

// Finalize closes an in-progress submission. It returns pgx.ErrNoRows when
// the submission was already final, which makes it safe against a racing
// second submit.
func (r *SubmissionRepository) Finalize(ctx context.Context, id uuid.UUID, status model.SubmissionStatus, score float64) (time.Time, error) {
	var submittedAt time.Time
	err := r.pool.QueryRow(ctx,
		`UPDATE submissions
		 SET status = $1, score = $2, submitted_at = NOW(), remaining_seconds = 0
		 WHERE id = $3 AND status = $4
		 RETURNING submitted_at`,
		status, score, id, model.SubmissionStatusInProgress,
	).Scan(&submittedAt)
	return submittedAt, err
}
