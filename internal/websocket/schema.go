package websocket

import (
	"time"

	"github.com/google/uuid"
)

// ─── Events (Server → Proctor) ──────────────────────────────────────

type EventType string

const (
	EventStarted     EventType = "started"
	EventAnswerSaved EventType = "answer_saved"
	EventTimeSynced  EventType = "time_synced"
	EventSubmitted   EventType = "submitted"
	EventPing        EventType = "ping"
	EventError       EventType = "error"
)

// MonitorEvent is one line of the proctor's live feed. Answer content is
// never included.
type MonitorEvent struct {
	Type         EventType  `json:"type"`
	SubmissionID uuid.UUID  `json:"submission_id"`
	StudentID    int        `json:"student_id,omitempty"`
	QuestionID   *uuid.UUID `json:"question_id,omitempty"`
	Remaining    *int       `json:"remaining_seconds,omitempty"`
	Score        *float64   `json:"score,omitempty"`
	At           time.Time  `json:"at"`
}

// ErrorEvent is sent before the server closes a feed it cannot serve.
type ErrorEvent struct {
	Type  EventType `json:"type"`
	Error string    `json:"error"`
}
