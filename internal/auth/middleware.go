package auth

import (
	"encoding/json"
	"net/http"
)

// SessionCookieName is the cookie that carries the session ID.
const SessionCookieName = "connect.sid"

const (
	msgNotLoggedIn       = "Not Logged In"
	msgIncorrectPassword = "Incorrect Password"
)

// RequireAuth gates a handler behind operator credentials, checked in order:
// authentication disabled, authenticated session, then the Authorization
// header verified as the operator password.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.RequiresPassword() || a.SessionAuthenticated(r) {
			next.ServeHTTP(w, r)
			return
		}

		if header := r.Header.Get("Authorization"); header != "" {
			if Verify(header, a.passwordHash) {
				next.ServeHTTP(w, r)
				return
			}
			a.logger.Warn("Rejected Authorization header", "ip", a.ClientIP(r), "path", r.URL.Path)
			deny(w, msgIncorrectPassword)
			return
		}

		deny(w, msgNotLoggedIn)
	})
}

// BasicGate guards the metrics surface with HTTP Basic. The username is
// ignored; the password is verified against its own hash. It keeps no state.
type BasicGate struct {
	hash  string
	realm string
}

// NewBasicGate creates a gate. An empty hash leaves the surface open.
func NewBasicGate(hash, realm string) *BasicGate {
	if realm == "" {
		realm = "metrics"
	}
	return &BasicGate{hash: hash, realm: realm}
}

// Enabled reports whether a metrics hash is configured.
func (g *BasicGate) Enabled() bool {
	return g.hash != ""
}

// Wrap applies the gate to next.
func (g *BasicGate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		_, pass, ok := r.BasicAuth()
		if !ok || pass == "" {
			g.challenge(w, msgNotLoggedIn)
			return
		}
		if !Verify(pass, g.hash) {
			g.challenge(w, msgIncorrectPassword)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *BasicGate) challenge(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+g.realm+`", charset="UTF-8"`)
	deny(w, msg)
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SessionID returns the session cookie value, or "".
func SessionID(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetSessionCookie sets the session cookie. A session with an expiry gets a
// matching Max-Age; otherwise the cookie lasts until the browser closes.
func SetSessionCookie(w http.ResponseWriter, r *http.Request, s *Session) {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	}
	if s.ExpiresAt != nil {
		c.Expires = *s.ExpiresAt
		c.MaxAge = int(s.ExpiresAt.Sub(s.CreatedAt).Seconds())
	}
	http.SetCookie(w, c)
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
