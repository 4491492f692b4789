package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-session/internal/model"
	"gopkg.in/yaml.v3"
)

// examFile is the YAML layout of an exam definition.
type examFile struct {
	Title           string         `yaml:"title"`
	DurationMinutes int            `yaml:"duration_minutes"`
	StartsAt        *time.Time     `yaml:"starts_at"`
	EndsAt          *time.Time     `yaml:"ends_at"`
	Password        string         `yaml:"password"`
	Proctor         string         `yaml:"proctor"`
	Students        []studentEntry `yaml:"students"`
	Questions       []questionDef  `yaml:"questions"`
}

type studentEntry struct {
	NISN string `yaml:"nisn"`
	Name string `yaml:"name"`
}

type questionDef struct {
	Type           model.QuestionType `yaml:"type"`
	Text           string             `yaml:"text"`
	Points         float64            `yaml:"points"`
	MultipleSelect bool               `yaml:"multiple_select"`
	Options        []model.Option     `yaml:"options"`
	// Answer is the correct option id of a single choice question.
	Answer string `yaml:"answer"`
	// Answers are the correct option ids of a multi-select question.
	Answers []string `yaml:"answers"`
}

// seedQuestion is a question ready to insert with its wire-encoded key.
type seedQuestion struct {
	Question model.Question
	Correct  string
}

func loadExamFile(path string) (*examFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exam file: %w", err)
	}
	var f examFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse exam file: %w", err)
	}
	return &f, nil
}

// validate checks the definition and builds its questions in order.
func (f *examFile) validate() ([]seedQuestion, error) {
	var errs []error
	if f.Title == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if f.DurationMinutes <= 0 {
		errs = append(errs, errors.New("duration_minutes must be positive"))
	}
	if f.StartsAt != nil && f.EndsAt != nil && !f.EndsAt.After(*f.StartsAt) {
		errs = append(errs, errors.New("ends_at must be after starts_at"))
	}
	if len(f.Questions) == 0 {
		errs = append(errs, errors.New("at least one question is required"))
	}
	for i, s := range f.Students {
		if s.NISN == "" || s.Name == "" {
			errs = append(errs, fmt.Errorf("student %d: nisn and name are required", i+1))
		}
	}

	out := make([]seedQuestion, 0, len(f.Questions))
	for i, def := range f.Questions {
		sq, err := def.build(i + 1)
		if err != nil {
			errs = append(errs, fmt.Errorf("question %d: %w", i+1, err))
			continue
		}
		out = append(out, sq)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func (d questionDef) build(order int) (seedQuestion, error) {
	q := model.Question{
		Type:           d.Type,
		Text:           d.Text,
		MultipleSelect: d.MultipleSelect,
		Options:        d.Options,
		Points:         d.Points,
		OrderNum:       order,
	}
	if q.Type == "" {
		q.Type = model.QuestionTypeMultipleChoice
	}
	if q.Text == "" {
		return seedQuestion{}, errors.New("text is required")
	}
	if q.Points < 0 {
		return seedQuestion{}, errors.New("points must not be negative")
	}

	var key model.Answer
	switch q.Type {
	case model.QuestionTypeEssay:
		if len(q.Options) > 0 || q.MultipleSelect {
			return seedQuestion{}, errors.New("essay questions take no options")
		}
		return seedQuestion{Question: q}, nil
	case model.QuestionTypeMultipleChoice:
		if len(q.Options) < 2 {
			return seedQuestion{}, errors.New("multiple choice needs at least two options")
		}
		switch {
		case q.MultipleSelect && len(d.Answers) > 0:
			key = model.MultiChoice(d.Answers...)
		case !q.MultipleSelect && d.Answer != "":
			key = model.SingleChoice(d.Answer)
		default:
			return seedQuestion{}, errors.New("correct answer is required")
		}
	default:
		return seedQuestion{}, fmt.Errorf("unknown type %q", q.Type)
	}

	if err := key.Fits(&q); err != nil {
		return seedQuestion{}, err
	}
	correct, err := key.Encode()
	if err != nil {
		return seedQuestion{}, err
	}
	return seedQuestion{Question: q, Correct: correct}, nil
}
