package auth

import (
	"errors"
	"net/http"

	"grimm.is/tunnelgate/internal/logging"
)

var (
	// ErrLoginDisabled is returned by Login when no operator hash is configured.
	ErrLoginDisabled = errors.New("login is disabled")
	// ErrIncorrectPassword is returned by Login for a failed verification.
	ErrIncorrectPassword = errors.New("incorrect password")
)

// Authenticator decides whether a request carries operator credentials.
type Authenticator struct {
	passwordHash string
	sessions     *Sessions
	proxies      *TrustedProxies
	logger       *logging.Logger
}

// NewAuthenticator creates an Authenticator. An empty passwordHash disables
// authentication entirely.
func NewAuthenticator(passwordHash string, sessions *Sessions, logger *logging.Logger) *Authenticator {
	if logger == nil {
		logger = logging.WithComponent("auth")
	}
	return &Authenticator{
		passwordHash: passwordHash,
		sessions:     sessions,
		logger:       logger,
	}
}

// RequiresPassword reports whether an operator hash is configured.
func (a *Authenticator) RequiresPassword() bool {
	return a.passwordHash != ""
}

// SetTrustedProxies sets the peers whose forwarding headers are honored.
func (a *Authenticator) SetTrustedProxies(p *TrustedProxies) {
	a.proxies = p
}

// ClientIP returns the caller's address as seen through trusted proxies.
func (a *Authenticator) ClientIP(r *http.Request) string {
	return a.proxies.ClientIP(r)
}

// Sessions returns the session service.
func (a *Authenticator) Sessions() *Sessions {
	return a.sessions
}

// SessionAuthenticated reports whether r carries a live authenticated session.
func (a *Authenticator) SessionAuthenticated(r *http.Request) bool {
	return a.sessions.Authenticated(SessionID(r))
}

// IsAuthenticated is the GET /api/session view: always true when
// authentication is disabled.
func (a *Authenticator) IsAuthenticated(r *http.Request) bool {
	if !a.RequiresPassword() {
		return true
	}
	return a.SessionAuthenticated(r)
}

// Login verifies password and establishes an authenticated session.
func (a *Authenticator) Login(password string, remember bool) (*Session, error) {
	if !a.RequiresPassword() {
		return nil, ErrLoginDisabled
	}
	if !Verify(password, a.passwordHash) {
		return nil, ErrIncorrectPassword
	}
	return a.sessions.Establish(remember)
}

// Logout destroys the session carried by r.
func (a *Authenticator) Logout(r *http.Request) error {
	return a.sessions.Destroy(SessionID(r))
}
