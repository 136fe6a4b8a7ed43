package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"grimm.is/tunnelgate/internal/clock"
)

// ErrSessionNotFound is returned by stores for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// Session is the server-side state behind a session cookie.
type Session struct {
	ID            string     `json:"id"`
	Authenticated bool       `json:"authenticated"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"` // nil: lives as long as the browser cookie
}

// Expired reports whether the session's max-age has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// SessionStore persists sessions. Implementations must be safe for
// concurrent use and must hand out copies, never shared pointers.
type SessionStore interface {
	Get(id string) (*Session, error)
	Save(s *Session) error
	Delete(id string) error
}

// Sessions is the only component that creates, mutates or destroys sessions.
type Sessions struct {
	store  SessionStore
	clock  clock.Clock
	maxAge time.Duration

	// Serializes read-check-write sequences so a logout and a concurrent
	// lookup of the same session observe either the before or the after.
	mu sync.Mutex
}

// NewSessions creates the session service. maxAge of zero disables remember-me.
func NewSessions(store SessionStore, maxAge time.Duration, clk clock.Clock) *Sessions {
	return &Sessions{
		store:  store,
		clock:  clock.OrReal(clk),
		maxAge: maxAge,
	}
}

// MaxAge returns the configured remember-me lifetime.
func (s *Sessions) MaxAge() time.Duration {
	return s.maxAge
}

// Authenticated reports whether id names a live, authenticated session.
// Expired sessions are removed on sight.
func (s *Sessions) Authenticated(id string) bool {
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.Get(id)
	if err != nil {
		return false
	}
	if sess.Expired(s.clock.Now()) {
		_ = s.store.Delete(id)
		return false
	}
	return sess.Authenticated
}

// Establish creates a fresh authenticated session. The expiry is set to
// now+maxAge only when remember is requested and a max-age is configured.
func (s *Sessions) Establish(remember bool) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sess := &Session{
		ID:            id,
		Authenticated: true,
		CreatedAt:     now,
	}
	if remember && s.maxAge > 0 {
		exp := now.Add(s.maxAge)
		sess.ExpiresAt = &exp
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return sess, nil
}

// Destroy invalidates id permanently. Unknown IDs are ignored.
func (s *Sessions) Destroy(id string) error {
	if id == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return nil
}

// newSessionID returns 32 random bytes, hex encoded.
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
