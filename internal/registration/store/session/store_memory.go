// In-memory session store for development and tests. Versioned conditional
// writes behave exactly like the durable implementations so orchestrator races
// can be exercised deterministically.
package session

import (
	"context"
	"sync"

	"enroll/internal/registration/models"
	"enroll/internal/registration/ports"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session // by key
	byID     map[string]string          // session ID -> key
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*models.Session),
		byID:     make(map[string]string),
	}
}

func (s *InMemoryStore) Get(_ context.Context, key string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[key]; ok {
		return sess.Clone(), nil
	}
	return nil, ports.ErrSessionNotFound
}

func (s *InMemoryStore) GetByID(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byID[sessionID]
	if !ok {
		return nil, ports.ErrSessionNotFound
	}
	if sess, ok := s.sessions[key]; ok {
		return sess.Clone(), nil
	}
	return nil, ports.ErrSessionNotFound
}

// PutIf stores the session only when the current version matches
// expectedVersion (zero means the key must be absent). The caller's session
// has its Version advanced on success.
func (s *InMemoryStore) PutIf(_ context.Context, session *models.Session, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentVersion := int64(0)
	if current, ok := s.sessions[session.Key]; ok {
		currentVersion = current.Version
	}
	if currentVersion != expectedVersion {
		return ports.ErrConcurrentModification
	}

	session.Version = expectedVersion + 1
	s.sessions[session.Key] = session.Clone()
	s.byID[session.SessionID] = session.Key
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		delete(s.byID, sess.SessionID)
		delete(s.sessions, key)
	}
	return nil
}
