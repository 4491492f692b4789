package model

import (
	"testing"

	"github.com/google/uuid"
)

func TestAward(t *testing.T) {
	single := AnswerKey{QuestionID: uuid.New(), Type: QuestionTypeMultipleChoice, Correct: "b", Points: 2}
	multi := AnswerKey{QuestionID: uuid.New(), Type: QuestionTypeMultipleChoice, MultipleSelect: true, Correct: `["a","c"]`, Points: 3}
	essay := AnswerKey{QuestionID: uuid.New(), Type: QuestionTypeEssay, Points: 5}

	cases := []struct {
		name    string
		key     AnswerKey
		content string
		points  float64
		manual  bool
	}{
		{"single correct", single, "b", 2, false},
		{"single wrong", single, "c", 0, false},
		{"single empty", single, "", 0, false},
		{"multi same order", multi, `["a","c"]`, 3, false},
		{"multi other order", multi, `["c","a"]`, 3, false},
		{"multi subset", multi, `["a"]`, 0, false},
		{"multi superset", multi, `["a","b","c"]`, 0, false},
		{"multi malformed", multi, `["a"`, 0, false},
		{"essay", essay, "anything", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			points, manual := tc.key.Award(tc.content)
			if points != tc.points || manual != tc.manual {
				t.Fatalf("Award(%q) = %v, %v; want %v, %v", tc.content, points, manual, tc.points, tc.manual)
			}
		})
	}
}

func TestGrade(t *testing.T) {
	q1 := AnswerKey{QuestionID: uuid.New(), Type: QuestionTypeMultipleChoice, Correct: "a", Points: 1}
	q2 := AnswerKey{QuestionID: uuid.New(), Type: QuestionTypeMultipleChoice, Correct: "d", Points: 1}
	q3 := AnswerKey{QuestionID: uuid.New(), Type: QuestionTypeEssay, Points: 4}
	keys := []AnswerKey{q1, q2, q3}

	score, manual := Grade(keys, map[uuid.UUID]string{q1.QuestionID: "a", q2.QuestionID: "c"})
	if score != 1 || manual {
		t.Fatalf("Grade without essay answer = %v, %v", score, manual)
	}

	score, manual = Grade(keys, map[uuid.UUID]string{q1.QuestionID: "a", q2.QuestionID: "d", q3.QuestionID: "essay"})
	if score != 2 || !manual {
		t.Fatalf("Grade with essay answer = %v, %v", score, manual)
	}
}
