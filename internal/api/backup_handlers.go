package api

import (
	"net/http"
)

type restoreRequest struct {
	File string `json:"file"`
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) error {
	backup, err := s.roster.BackupConfiguration(r.Context())
	if err != nil {
		return err
	}
	writeAttachment(w, "text/json", s.cfg.WireGuard.Interface+".json", backup)
	return nil
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) error {
	var req restoreRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.File == "" {
		return ErrBadRequest("Missing backup file", nil)
	}
	if err := s.roster.RestoreConfiguration(r.Context(), req.File); err != nil {
		return err
	}
	writeSuccess(w)
	return nil
}
