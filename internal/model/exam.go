package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam represents an exam entity. Read-only to the exam taker.
type Exam struct {
	ID                uuid.UUID  `json:"id"`
	Title             string     `json:"title"`
	DurationMinutes   int        `json:"duration_minutes"`
	StartsAt          *time.Time `json:"starts_at,omitempty"`
	EndsAt            *time.Time `json:"ends_at,omitempty"`
	PasswordProtected bool       `json:"password_protected"`
	PasswordHash      string     `json:"-"`
	QuestionCount     int        `json:"question_count"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Duration returns the total exam duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// OpenAt reports whether the exam window admits a new attempt at t.
func (e *Exam) OpenAt(t time.Time) bool {
	if e.StartsAt != nil && t.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && !t.Before(*e.EndsAt) {
		return false
	}
	return true
}
