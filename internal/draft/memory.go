package draft

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps drafts in process memory. It does not survive a restart
// and exists for tests and throwaway sessions.
type MemoryStore struct {
	mu     sync.Mutex
	drafts map[string]map[uuid.UUID]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]map[uuid.UUID]string)}
}

func (s *MemoryStore) Write(_ context.Context, submissionID, questionID uuid.UUID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(submissionID)
	m, ok := s.drafts[k]
	if !ok {
		m = make(map[uuid.UUID]string)
		s.drafts[k] = m
	}
	m[questionID] = content
	return nil
}

func (s *MemoryStore) ReadAll(_ context.Context, submissionID uuid.UUID) (map[uuid.UUID]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]string, len(s.drafts[key(submissionID)]))
	for q, c := range s.drafts[key(submissionID)] {
		out[q] = c
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, submissionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, key(submissionID))
	return nil
}
