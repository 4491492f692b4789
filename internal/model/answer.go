package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAnswerKindMismatch = errors.New("answer kind does not match question type")
	ErrMalformedAnswer    = errors.New("malformed answer content")
)

// AnswerKind tags the shape of an Answer.
type AnswerKind uint8

const (
	AnswerNone AnswerKind = iota
	AnswerSingle
	AnswerMulti
	AnswerText
)

func (k AnswerKind) String() string {
	switch k {
	case AnswerSingle:
		return "single"
	case AnswerMulti:
		return "multi"
	case AnswerText:
		return "text"
	default:
		return "none"
	}
}

// Answer is the student's response to one question. Value is set for single
// and text answers, Values for multi answers. It only becomes a plain string
// at the wire and draft boundaries, via Encode and DecodeAnswer.
type Answer struct {
	Kind   AnswerKind
	Value  string
	Values []string
}

func SingleChoice(optionID string) Answer {
	return Answer{Kind: AnswerSingle, Value: optionID}
}

func MultiChoice(optionIDs ...string) Answer {
	values := make([]string, len(optionIDs))
	copy(values, optionIDs)
	return Answer{Kind: AnswerMulti, Values: values}
}

func TextAnswer(text string) Answer {
	return Answer{Kind: AnswerText, Value: text}
}

func (a Answer) IsZero() bool {
	return a.Kind == AnswerNone
}

// Equal compares kind and content. Multi answers compare in order.
func (a Answer) Equal(b Answer) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind != AnswerMulti {
		return a.Value == b.Value
	}
	if len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			return false
		}
	}
	return true
}

// Encode renders the answer in the wire convention: the bare option id for a
// single choice, a JSON array of option ids for a multi choice, free text for
// an essay.
func (a Answer) Encode() (string, error) {
	switch a.Kind {
	case AnswerSingle, AnswerText:
		return a.Value, nil
	case AnswerMulti:
		values := a.Values
		if values == nil {
			values = []string{}
		}
		b, err := json.Marshal(values)
		if err != nil {
			return "", fmt.Errorf("encode multi answer: %w", err)
		}
		return string(b), nil
	default:
		return "", nil
	}
}

// Fits checks that the answer kind is the one q expects.
func (a Answer) Fits(q *Question) error {
	want := KindFor(q)
	if a.Kind != want {
		return fmt.Errorf("%w: %s answer for %s question", ErrAnswerKindMismatch, a.Kind, want)
	}
	if a.Kind == AnswerSingle && a.Value != "" && len(q.Options) > 0 && !q.HasOption(a.Value) {
		return fmt.Errorf("%w: unknown option %q", ErrAnswerKindMismatch, a.Value)
	}
	if a.Kind == AnswerMulti && len(q.Options) > 0 {
		for _, v := range a.Values {
			if !q.HasOption(v) {
				return fmt.Errorf("%w: unknown option %q", ErrAnswerKindMismatch, v)
			}
		}
	}
	return nil
}

// KindFor returns the answer kind a question accepts.
func KindFor(q *Question) AnswerKind {
	switch {
	case q.Type == QuestionTypeEssay:
		return AnswerText
	case q.MultipleSelect:
		return AnswerMulti
	default:
		return AnswerSingle
	}
}

// DecodeAnswer parses wire content for q. Empty content on a multiple choice
// question decodes to the zero Answer. A bare option id stored for a
// multi-select question is accepted as a one-element selection.
func DecodeAnswer(q *Question, content string) (Answer, error) {
	switch KindFor(q) {
	case AnswerText:
		return TextAnswer(content), nil
	case AnswerSingle:
		if content == "" {
			return Answer{}, nil
		}
		return SingleChoice(content), nil
	default:
		trimmed := strings.TrimSpace(content)
		if trimmed == "" {
			return Answer{}, nil
		}
		if !strings.HasPrefix(trimmed, "[") {
			return MultiChoice(trimmed), nil
		}
		var values []string
		if err := json.Unmarshal([]byte(trimmed), &values); err != nil {
			return Answer{}, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
		}
		return MultiChoice(values...), nil
	}
}
