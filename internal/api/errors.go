package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"grimm.is/tunnelgate/internal/roster"
)

// HTTPError is an error with a status code and a message safe to show the caller.
type HTTPError struct {
	Status  int
	Message string
	Err     error // cause, logged but never sent
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// ErrAuthRequired is returned when no credentials were presented.
func ErrAuthRequired() *HTTPError {
	return &HTTPError{Status: http.StatusUnauthorized, Message: "Not Logged In"}
}

// ErrIncorrectPassword is returned when presented credentials do not verify.
func ErrIncorrectPassword() *HTTPError {
	return &HTTPError{Status: http.StatusUnauthorized, Message: "Incorrect Password"}
}

// ErrForbidden is returned for rejected route parameters.
func ErrForbidden() *HTTPError {
	return &HTTPError{Status: http.StatusForbidden, Message: "Forbidden"}
}

// ErrInvalidState is returned when a feature is switched off.
func ErrInvalidState() *HTTPError {
	return &HTTPError{Status: http.StatusNotFound, Message: "Invalid state"}
}

// ErrBadRequest wraps a client input error.
func ErrBadRequest(msg string, err error) *HTTPError {
	return &HTTPError{Status: http.StatusBadRequest, Message: msg, Err: err}
}

// ErrNotFound is returned for unknown resources.
func ErrNotFound(msg string) *HTTPError {
	return &HTTPError{Status: http.StatusNotFound, Message: msg}
}

// ErrTooManyRequests is returned when a caller is throttled.
func ErrTooManyRequests() *HTTPError {
	return &HTTPError{Status: http.StatusTooManyRequests, Message: "Too Many Requests"}
}

// ErrInternal hides err behind a generic message.
func ErrInternal(err error) *HTTPError {
	return &HTTPError{Status: http.StatusInternalServerError, Message: "Internal Server Error", Err: err}
}

// toHTTPError maps handler and roster errors onto the taxonomy.
func toHTTPError(err error) *HTTPError {
	var he *HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, roster.ErrClientNotFound):
		return &HTTPError{Status: http.StatusNotFound, Message: "Client Not Found", Err: err}
	case errors.Is(err, roster.ErrInvalidInput):
		return &HTTPError{Status: http.StatusBadRequest, Message: invalidInputMessage(err), Err: err}
	default:
		return ErrInternal(err)
	}
}

// invalidInputMessage strips the sentinel prefix, which tells the caller nothing.
func invalidInputMessage(err error) string {
	if msg, ok := strings.CutPrefix(err.Error(), roster.ErrInvalidInput.Error()+": "); ok {
		return msg
	}
	return "Bad Request"
}

// handlerFunc is an http.HandlerFunc that reports failure as an error.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts h to http.Handler. Errors become {"error": msg}; server
// errors are logged in full and only described in debug mode.
func (s *Server) handle(h handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		he := toHTTPError(err)
		if he.Status >= http.StatusInternalServerError {
			s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		} else {
			s.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", he.Status, "error", err)
		}

		var details []string
		if s.debug && he.Err != nil {
			details = append(details, he.Err.Error())
		}
		WriteError(w, he.Status, he.Message, details...)
	})
}
