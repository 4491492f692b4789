package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates submission states.
type SubmissionStatus string

const (
	SubmissionStatusInProgress SubmissionStatus = "in_progress"
	SubmissionStatusSubmitted  SubmissionStatus = "submitted"
	SubmissionStatusGraded     SubmissionStatus = "graded"
	SubmissionStatusCancelled  SubmissionStatus = "cancelled"
)

// Final reports whether the submission can no longer be changed by the student.
func (s SubmissionStatus) Final() bool {
	return s != SubmissionStatusInProgress
}

// Submission represents a student's attempt at an exam.
type Submission struct {
	ID               uuid.UUID        `json:"id"`
	ExamID           uuid.UUID        `json:"exam_id"`
	StudentID        int              `json:"student_id"`
	Status           SubmissionStatus `json:"status"`
	RemainingSeconds int              `json:"remaining_seconds"`
	CurrentOrder     int              `json:"current_order"`
	Score            *float64         `json:"score,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	SubmittedAt      *time.Time       `json:"submitted_at,omitempty"`
}
