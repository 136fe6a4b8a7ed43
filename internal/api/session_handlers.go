package api

import (
	"errors"
	"net/http"

	"grimm.is/tunnelgate/internal/auth"
)

// --- Session / Auth Handlers ---

type sessionStatus struct {
	RequiresPassword bool `json:"requiresPassword"`
	Authenticated    bool `json:"authenticated"`
}

type loginRequest struct {
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) error {
	WriteJSON(w, http.StatusOK, sessionStatus{
		RequiresPassword: s.auth.RequiresPassword(),
		Authenticated:    s.auth.IsAuthenticated(r),
	})
	return nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) error {
	if !s.auth.RequiresPassword() {
		return &HTTPError{Status: http.StatusUnauthorized, Message: "Invalid state"}
	}

	clientIP := s.auth.ClientIP(r)
	if !s.limiter.Allow(clientIP) {
		s.logger.Warn("Rate limit exceeded for login", "ip", clientIP)
		s.recordLogin("throttled")
		return ErrTooManyRequests()
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	sess, err := s.auth.Login(req.Password, req.Remember)
	switch {
	case errors.Is(err, auth.ErrIncorrectPassword):
		s.logger.Warn("Failed login attempt", "ip", clientIP)
		s.recordLogin("failure")
		return ErrIncorrectPassword()
	case err != nil:
		return ErrInternal(err)
	}

	s.limiter.Reset(clientIP)
	auth.SetSessionCookie(w, r, sess)
	s.recordLogin("success")
	s.logger.Audit("session.login", "session", map[string]any{
		"ip":       clientIP,
		"remember": sess.ExpiresAt != nil,
	})

	writeSuccess(w)
	return nil
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) error {
	if err := s.auth.Logout(r); err != nil {
		return ErrInternal(err)
	}
	auth.ClearSessionCookie(w)
	s.logger.Audit("session.logout", "session", map[string]any{"ip": s.auth.ClientIP(r)})

	writeSuccess(w)
	return nil
}

func (s *Server) recordLogin(result string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(result)
	}
}
