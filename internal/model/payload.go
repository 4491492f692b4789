package model

import (
	"time"

	"github.com/google/uuid"
)

// StartExamRequest is the payload for starting (or re-joining) an exam.
type StartExamRequest struct {
	Password string `json:"password" binding:"omitempty,max=72"`
}

// SaveAnswerRequest upserts the answer content of one question.
type SaveAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Content    string    `json:"content" binding:"answertext,max=20000"`
}

// RemainingTimeRequest reports the client's remaining time. Advisory only.
type RemainingTimeRequest struct {
	Seconds *int `json:"seconds" binding:"required,min=0"`
}

// QuestionPayload is returned by start, resume and question fetches.
// ExistingAnswer is the server's record of the student's answer, if any.
type QuestionPayload struct {
	SubmissionID     uuid.UUID `json:"submission_id"`
	ExamID           uuid.UUID `json:"exam_id"`
	CurrentOrder     int       `json:"current_order"`
	TotalQuestions   int       `json:"total_questions"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Question         Question  `json:"question"`
	ExistingAnswer   *string   `json:"existing_answer,omitempty"`
}

// SubmitResult is returned by a confirmed final submission.
type SubmitResult struct {
	SubmissionID uuid.UUID        `json:"submission_id"`
	SubmittedAt  time.Time        `json:"submitted_at"`
	Status       SubmissionStatus `json:"status"`
}
