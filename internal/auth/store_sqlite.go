package auth

import (
	"errors"

	"grimm.is/tunnelgate/internal/clock"
	"grimm.is/tunnelgate/internal/state"
)

// StateSessionStore persists remembered sessions in the state store's
// sessions bucket, so they survive a restart. Entries carry a TTL matching
// their expiry and the store's cleanup loop purges them. Sessions without an
// expiry live in memory only and end with the process.
type StateSessionStore struct {
	bucket   *state.Bucket[Session]
	volatile *MemorySessionStore
	clock    clock.Clock
}

// NewStateSessionStore opens the sessions bucket.
func NewStateSessionStore(store state.Store, clk clock.Clock) (*StateSessionStore, error) {
	bucket, err := state.NewBucket[Session](store, state.BucketSessions)
	if err != nil {
		return nil, err
	}
	clk = clock.OrReal(clk)
	return &StateSessionStore{
		bucket:   bucket,
		volatile: NewMemorySessionStore(clk),
		clock:    clk,
	}, nil
}

// Get loads a session.
func (s *StateSessionStore) Get(id string) (*Session, error) {
	if sess, err := s.volatile.Get(id); err == nil {
		return sess, nil
	}
	sess, err := s.bucket.Get(id)
	if errors.Is(err, state.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// Save writes a remembered session with a TTL matching its expiry. Other
// sessions are kept in memory.
func (s *StateSessionStore) Save(sess *Session) error {
	if sess.ExpiresAt == nil {
		return s.volatile.Save(sess)
	}
	ttl := s.clock.Until(*sess.ExpiresAt)
	if ttl <= 0 {
		return s.bucket.Delete(sess.ID)
	}
	return s.bucket.PutWithTTL(sess.ID, sess, ttl)
}

// Delete removes a session.
func (s *StateSessionStore) Delete(id string) error {
	if err := s.volatile.Delete(id); err == nil {
		return nil
	}
	if _, err := s.Get(id); err != nil {
		return err
	}
	return s.bucket.Delete(id)
}
