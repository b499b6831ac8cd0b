package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mdlgate/internal/issuance/models"
	psync "mdlgate/pkg/platform/sync"
	"mdlgate/pkg/platform/sentinel"
)

// Error contract: lookups of unknown keys return sentinel.ErrNotFound,
// expired sessions sentinel.ErrExpired, and transitions attempted from the
// wrong state sentinel.ErrAlreadyUsed. Services translate these once.

// InMemoryStore holds issuance sessions indexed by authorization code and
// access token. byVerification maps a verification session to the latest
// issuance session created for it, which carries the bound holder key. Map
// access is guarded by mu; state transitions are serialized per session by
// locks.
type InMemoryStore struct {
	mu             sync.RWMutex
	sessions       map[string]*models.Session
	byCode         map[string]string
	byToken        map[string]string
	byVerification map[string]string

	locks *psync.KeyedMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:       make(map[string]*models.Session),
		byCode:         make(map[string]string),
		byToken:        make(map[string]string),
		byVerification: make(map[string]string),
		locks:          psync.NewKeyedMutex(),
	}
}

// Create stores a new session. A verification session stays bound to the
// holder key of the first session created for it until that session is
// purged; a different key fails with ErrAlreadyUsed.
func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byCode[session.AuthCode]; exists {
		return fmt.Errorf("authorization code collision: %w", sentinel.ErrInvalidState)
	}
	if vsID := session.VerificationSessionID; vsID != "" {
		if boundID, ok := s.byVerification[vsID]; ok {
			if bound, ok := s.sessions[boundID]; ok && bound.HolderThumbprint != session.HolderThumbprint {
				return fmt.Errorf("verification session bound to another holder: %w", sentinel.ErrAlreadyUsed)
			}
		}
		s.byVerification[vsID] = session.ID
	}
	s.sessions[session.ID] = session.Clone()
	s.byCode[session.AuthCode] = session.ID
	return nil
}

// ExchangeCode moves the session behind code from authorized to
// token_issued and indexes it under accessToken. A code exchanges once; the
// second attempt fails with ErrAlreadyUsed.
func (s *InMemoryStore) ExchangeCode(_ context.Context, code, accessToken string, now time.Time) (*models.Session, error) {
	sessionID, ok := s.lookup(s.byCode, code)
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	switch session.StateAt(now) {
	case models.StateExpired:
		return nil, sentinel.ErrExpired
	case models.StateAuthorized:
	default:
		return nil, sentinel.ErrAlreadyUsed
	}

	session.AccessToken = accessToken
	session.State = models.StateTokenIssued
	s.byToken[accessToken] = sessionID
	return session.Clone(), nil
}

// RedeemToken runs issue for the session behind accessToken and, if it
// succeeds, moves the session to credential_issued. The per-session lock is
// held across issue, so concurrent redemptions of one token yield at most
// one credential.
func (s *InMemoryStore) RedeemToken(_ context.Context, accessToken string, now time.Time, issue func(*models.Session) error) (*models.Session, error) {
	sessionID, ok := s.lookup(s.byToken, accessToken)
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	var snapshot *models.Session
	if ok {
		snapshot = session.Clone()
	}
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	switch snapshot.StateAt(now) {
	case models.StateExpired:
		return nil, sentinel.ErrExpired
	case models.StateTokenIssued:
	default:
		return nil, sentinel.ErrAlreadyUsed
	}

	if err := issue(snapshot); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[sessionID]; ok {
		current.State = models.StateCredentialIssued
		snapshot.State = models.StateCredentialIssued
	}
	return snapshot, nil
}

// FindByToken returns a copy of the live session behind accessToken.
func (s *InMemoryStore) FindByToken(_ context.Context, accessToken string, now time.Time) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionID, ok := s.byToken[accessToken]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	session, ok := s.sessions[sessionID]
	if !ok || session.IsExpired(now) {
		return nil, sentinel.ErrNotFound
	}
	return session.Clone(), nil
}

// DeleteExpired removes sessions past their deadline together with their
// index entries.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for sessionID, session := range s.sessions {
		if !session.IsExpired(now) {
			continue
		}
		delete(s.byCode, session.AuthCode)
		if session.AccessToken != "" {
			delete(s.byToken, session.AccessToken)
		}
		if s.byVerification[session.VerificationSessionID] == sessionID {
			delete(s.byVerification, session.VerificationSessionID)
		}
		delete(s.sessions, sessionID)
		deleted++
	}
	return deleted, nil
}

// Count returns the number of sessions held, expired or not.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *InMemoryStore) lookup(index map[string]string, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionID, ok := index[key]
	return sessionID, ok
}
