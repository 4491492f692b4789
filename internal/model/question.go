package model

import (
	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeEssay          QuestionType = "essay"
)

// Option is one selectable choice of a multiple choice question.
type Option struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Question represents a single exam question as delivered to the student.
// It never carries the answer key.
type Question struct {
	ID             uuid.UUID    `json:"id"`
	ExamID         uuid.UUID    `json:"exam_id"`
	Type           QuestionType `json:"type"`
	Text           string       `json:"text"`
	MultipleSelect bool         `json:"multiple_select"`
	Options        []Option     `json:"options,omitempty"`
	Points         float64      `json:"points"`
	OrderNum       int          `json:"order_num"`
}

// HasOption reports whether id names one of the question's options.
func (q *Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}
