package session

import (
	"context"
	"sync"

	"github.com/merchkit/dpm-relay/internal/dpm"
)

// MemoryStore is an in-process store for tests and local development. Like a
// serializing store it hands out copies, so callers cannot mutate stored
// state without going through Set. It never evicts.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*dpm.Session
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*dpm.Session{}}
}

// Get returns a copy of the stored session, or (nil, nil) when absent.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*dpm.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return copySession(sess), nil
}

// Set stores a copy of the session. A nil session deletes.
func (s *MemoryStore) Set(_ context.Context, sessionID string, sess *dpm.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess == nil {
		delete(s.sessions, sessionID)
		return nil
	}
	s.sessions[sessionID] = copySession(sess)
	return nil
}

// Len reports the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func copySession(sess *dpm.Session) *dpm.Session {
	out := &dpm.Session{Requests: sess.Requests}
	if sess.Orders != nil {
		out.Orders = make(map[string]dpm.Record, len(sess.Orders))
		for id, order := range sess.Orders {
			out.Orders[id] = order.Clone()
		}
	}
	return out
}
