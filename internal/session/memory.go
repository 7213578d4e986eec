package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]FlowSession
	now      func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]FlowSession),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (FlowSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return FlowSession{}, false, nil
	}
	return sess.Clone(), true, nil
}

func (s *MemoryStore) Set(_ context.Context, sess FlowSession) error {
	if _, errEncode := Encode(sess); errEncode != nil {
		return errEncode
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = s.now().UTC()
	}
	s.mu.Lock()
	s.sessions[sess.UserID] = sess.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, userID int64) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, userID)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
