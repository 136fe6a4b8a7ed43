package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"grimm.is/tunnelgate/internal/validation"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteError sends a JSON error response
func WriteError(w http.ResponseWriter, code int, message string, details ...string) {
	resp := ErrorResponse{Error: message}
	if len(details) > 0 {
		resp.Details = details[0]
	}
	WriteJSON(w, code, resp)
}

// WriteJSON sends a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeSuccess sends {"success": true}.
func writeSuccess(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeAttachment sends body as a downloadable file.
func writeAttachment(w http.ResponseWriter, contentType, filename, body string) {
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

// decodeJSON reads the request body into v. An empty body leaves v unchanged.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	var maxErr *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &maxErr):
		return &HTTPError{Status: http.StatusRequestEntityTooLarge, Message: "Request Entity Too Large", Err: err}
	default:
		return ErrBadRequest("Invalid JSON body", err)
	}
}

// pathParam returns the sanitized route parameter name.
func pathParam(r *http.Request, name string) (string, error) {
	v, err := validation.SanitizeKey(r.PathValue(name))
	if err != nil {
		return "", &HTTPError{Status: http.StatusForbidden, Message: "Forbidden", Err: err}
	}
	return v, nil
}
