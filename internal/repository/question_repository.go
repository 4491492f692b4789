package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
)

// QuestionRepository handles question data access. The answer key column is
// only read by ListAnswerKeys.
type QuestionRepository struct {
	pool DBTX
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool DBTX) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetByOrder retrieves the question at a 1-based position of an exam.
func (r *QuestionRepository) GetByOrder(ctx context.Context, examID uuid.UUID, order int) (*model.Question, error) {
	q := &model.Question{}
	var options []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, question_type, question_text, multiple_select, options, points, order_num
		 FROM questions WHERE exam_id = $1 AND order_num = $2`, examID, order,
	).Scan(&q.ID, &q.ExamID, &q.Type, &q.Text, &q.MultipleSelect, &options, &q.Points, &q.OrderNum)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return nil, fmt.Errorf("decode options of question %s: %w", q.ID, err)
	}
	return q, nil
}

// BelongsToExam reports whether questionID is part of examID.
func (r *QuestionRepository) BelongsToExam(ctx context.Context, examID, questionID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM questions WHERE id = $1 AND exam_id = $2)`, questionID, examID,
	).Scan(&ok)
	return ok, err
}

// ListAnswerKeys retrieves the grading data of every question of an exam.
func (r *QuestionRepository) ListAnswerKeys(ctx context.Context, examID uuid.UUID) ([]model.AnswerKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_type, multiple_select, correct_answer, points
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []model.AnswerKey
	for rows.Next() {
		var k model.AnswerKey
		if err := rows.Scan(&k.QuestionID, &k.Type, &k.MultipleSelect, &k.Correct, &k.Points); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Create inserts a question together with its answer key.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question, correct string) error {
	options := q.Options
	if options == nil {
		options = []model.Option{}
	}
	raw, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (exam_id, order_num, question_type, question_text, multiple_select, options, correct_answer, points)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		q.ExamID, q.OrderNum, q.Type, q.Text, q.MultipleSelect, raw, correct, q.Points,
	).Scan(&q.ID)
}
