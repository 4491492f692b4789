package model

import (
	"sort"

	"github.com/google/uuid"
)

// AnswerKey is the server-only grading data of one question.
type AnswerKey struct {
	QuestionID     uuid.UUID
	Type           QuestionType
	MultipleSelect bool
	// Correct is wire-encoded, like a stored answer.
	Correct string
	Points  float64
}

func (k AnswerKey) question() *Question {
	return &Question{ID: k.QuestionID, Type: k.Type, MultipleSelect: k.MultipleSelect}
}

// Award returns the points earned by content. Essays are never auto-graded
// and report manual=true. Multi-select answers must match the key as a set.
func (k AnswerKey) Award(content string) (points float64, manual bool) {
	if k.Type == QuestionTypeEssay {
		return 0, true
	}
	q := k.question()
	got, err := DecodeAnswer(q, content)
	if err != nil || got.IsZero() {
		return 0, false
	}
	want, err := DecodeAnswer(q, k.Correct)
	if err != nil || want.IsZero() {
		return 0, false
	}
	if got.Kind == AnswerMulti {
		got, want = sortedMulti(got), sortedMulti(want)
	}
	if got.Equal(want) {
		return k.Points, false
	}
	return 0, false
}

func sortedMulti(a Answer) Answer {
	out := MultiChoice(a.Values...)
	sort.Strings(out.Values)
	return out
}

// Grade scores a submission's answers. Questions without an answer earn
// nothing. manual is set when any essay awaits a human grader.
func Grade(keys []AnswerKey, answers map[uuid.UUID]string) (score float64, manual bool) {
	for _, k := range keys {
		content, ok := answers[k.QuestionID]
		if k.Type == QuestionTypeEssay {
			manual = manual || ok
			continue
		}
		if !ok {
			continue
		}
		p, _ := k.Award(content)
		score += p
	}
	return score, manual
}
