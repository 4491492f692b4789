package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AnswerRepository handles the durable copy of submission answers. The hot
// copy lives in Redis and reaches this table through the persist worker.
type AnswerRepository struct {
	pool DBTX
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool DBTX) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

const upsertAnswerSQL = `INSERT INTO submission_answers (submission_id, question_id, content)
	 VALUES ($1, $2, $3)
	 ON CONFLICT (submission_id, question_id) DO UPDATE
	 SET content = EXCLUDED.content, updated_at = NOW()`

// Upsert creates or replaces one answer.
func (r *AnswerRepository) Upsert(ctx context.Context, submissionID, questionID uuid.UUID, content string) error {
	_, err := r.pool.Exec(ctx, upsertAnswerSQL, submissionID, questionID, content)
	return err
}

// UpsertAll writes every answer in one round trip.
func (r *AnswerRepository) UpsertAll(ctx context.Context, submissionID uuid.UUID, answers map[uuid.UUID]string) error {
	if len(answers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for qid, content := range answers {
		batch.Queue(upsertAnswerSQL, submissionID, qid, content)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// Get retrieves one answer. Missing answers return pgx.ErrNoRows.
func (r *AnswerRepository) Get(ctx context.Context, submissionID, questionID uuid.UUID) (string, error) {
	var content string
	err := r.pool.QueryRow(ctx,
		`SELECT content FROM submission_answers WHERE submission_id = $1 AND question_id = $2`,
		submissionID, questionID,
	).Scan(&content)
	return content, err
}

// ListBySubmission retrieves every stored answer of a submission.
func (r *AnswerRepository) ListBySubmission(ctx context.Context, submissionID uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, content FROM submission_answers WHERE submission_id = $1`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[uuid.UUID]string)
	for rows.Next() {
		var qid uuid.UUID
		var content string
		if err := rows.Scan(&qid, &content); err != nil {
			return nil, err
		}
		answers[qid] = content
	}
	return answers, rows.Err()
}
