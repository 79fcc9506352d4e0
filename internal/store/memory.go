package store

import (
	"context"
	"sync"

	"github.com/parley-chat/parley/internal/chat"
)

// MemoryStore is an in-memory session store. It is the backend for tests
// and local development; nothing survives a process restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*chat.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*chat.Session)}
}

// Get retrieves the session stored under key, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

// Put stores a deep copy of the session under key.
func (s *MemoryStore) Put(_ context.Context, key string, sess *chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = sess.Clone()
	return nil
}

// Delete removes the session stored under key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}
