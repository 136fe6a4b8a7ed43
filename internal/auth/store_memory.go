package auth

import (
	"sync"

	"grimm.is/tunnelgate/internal/clock"
)

// MemorySessionStore keeps sessions in process memory. Sessions are lost on
// restart, which matches a cookie-scoped login.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	clock    clock.Clock
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore(clk clock.Clock) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]Session),
		clock:    clock.OrReal(clk),
	}
}

// Get returns a copy of the session.
func (m *MemorySessionStore) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

// Save stores a copy of s and sweeps expired sessions.
func (m *MemorySessionStore) Save(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for id, existing := range m.sessions {
		if existing.Expired(now) {
			delete(m.sessions, id)
		}
	}

	m.sessions[s.ID] = *s
	return nil
}

// Delete removes a session.
func (m *MemorySessionStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
