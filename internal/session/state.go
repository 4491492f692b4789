package session

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/clock"
	"github.com/stemsi/exstem-session/internal/model"
)

// State is the controller lifecycle state.
type State string

const (
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateNavigating   State = "navigating"
	StateSubmitting   State = "submitting"
	StateSubmitted    State = "submitted"
	StateError        State = "error"
)

// answerSlot tracks one question's answer between the user and the backend.
type answerSlot struct {
	// latest is the last value the user set (or the restored value).
	latest model.Answer
	// acked is the last value the backend is known to hold.
	acked model.Answer
	// seq increments on every set; a debounce callback carrying an older
	// seq lost a race with a newer edit and does nothing.
	seq     uint64
	pending clock.Timer
}

func (s *answerSlot) dirty() bool {
	return !s.latest.Equal(s.acked)
}

type pendingSave struct {
	questionID uuid.UUID
	answer     model.Answer
}

// saveTracker holds the per-question autosave bookkeeping. Debounces of
// different questions are independent.
type saveTracker struct {
	slots map[uuid.UUID]*answerSlot
}

func newSaveTracker() *saveTracker {
	return &saveTracker{slots: make(map[uuid.UUID]*answerSlot)}
}

func (t *saveTracker) slot(questionID uuid.UUID) *answerSlot {
	s, ok := t.slots[questionID]
	if !ok {
		s = &answerSlot{}
		t.slots[questionID] = s
	}
	return s
}

// set records a new user value and returns its sequence number.
func (t *saveTracker) set(questionID uuid.UUID, a model.Answer) uint64 {
	s := t.slot(questionID)
	s.latest = a
	s.seq++
	return s.seq
}

// arm replaces the question's pending debounce timer.
func (t *saveTracker) arm(questionID uuid.UUID, timer clock.Timer) {
	s := t.slot(questionID)
	if s.pending != nil {
		s.pending.Stop()
	}
	s.pending = timer
}

func (t *saveTracker) disarm(questionID uuid.UUID) {
	if s, ok := t.slots[questionID]; ok && s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

func (t *saveTracker) disarmAll() {
	for id := range t.slots {
		t.disarm(id)
	}
}

// take disarms the question and returns its latest value if the backend
// does not have it yet.
func (t *saveTracker) take(questionID uuid.UUID) (model.Answer, bool) {
	t.disarm(questionID)
	s, ok := t.slots[questionID]
	if !ok || !s.dirty() {
		return model.Answer{}, false
	}
	return s.latest, true
}

// takeAll is take over every question.
func (t *saveTracker) takeAll() []pendingSave {
	var out []pendingSave
	for id := range t.slots {
		if a, ok := t.take(id); ok {
			out = append(out, pendingSave{questionID: id, answer: a})
		}
	}
	return out
}

// ack records that the backend stored a. Acks may arrive out of order; a
// stale ack only makes the slot dirty again, which costs one extra save.
func (t *saveTracker) ack(questionID uuid.UUID, a model.Answer) {
	t.slot(questionID).acked = a
}
