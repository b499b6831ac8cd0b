package store

import (
	"context"
	"sync"
	"time"

	"mdlgate/internal/presentation/models"
	id "mdlgate/pkg/domain"
	"mdlgate/pkg/platform/sentinel"
)

// InMemoryStore remembers verification sessions until they expire. Expired
// entries behave as not found even before the sweeper removes them.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.VerificationSessionID]*models.Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.VerificationSessionID]*models.Session)}
}

func (s *InMemoryStore) Save(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

// Find returns a copy of the session, or sentinel.ErrNotFound when it is
// unknown or expired at now.
func (s *InMemoryStore) Find(_ context.Context, sessionID id.VerificationSessionID, now time.Time) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.IsExpired(now) {
		return nil, sentinel.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

// DeleteExpired removes every session expired at now.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, session := range s.sessions {
		if session.IsExpired(now) {
			delete(s.sessions, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
