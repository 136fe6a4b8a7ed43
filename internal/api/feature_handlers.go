package api

import (
	"net/http"
	"strconv"
)

// --- Public UI feature flags ---

// handleRelease reports the release as a number when it is one.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) error {
	if n, err := strconv.Atoi(s.cfg.Release); err == nil {
		WriteJSON(w, http.StatusOK, n)
		return nil
	}
	WriteJSON(w, http.StatusOK, s.cfg.Release)
	return nil
}

func (s *Server) handleLang(w http.ResponseWriter, r *http.Request) error {
	WriteJSON(w, http.StatusOK, s.cfg.Lang)
	return nil
}

func (s *Server) handleRememberMe(w http.ResponseWriter, r *http.Request) error {
	WriteJSON(w, http.StatusOK, s.cfg.Auth.MaxAge > 0)
	return nil
}

func (s *Server) handleTrafficStats(w http.ResponseWriter, r *http.Request) error {
	WriteJSON(w, http.StatusOK, s.cfg.UI.TrafficStats)
	return nil
}

func (s *Server) handleChartType(w http.ResponseWriter, r *http.Request) error {
	WriteJSON(w, http.StatusOK, s.cfg.UI.ChartType)
	return nil
}

func (s *Server) handleOneTimeLinksEnabled(w http.ResponseWriter, r *http.Request) error {
	WriteJSON(w, http.StatusOK, s.links.Enabled())
	return nil
}

func (s *Server) handleSortClients(w http.ResponseWriter, r *http.Request) error {
	WriteJSON(w, http.StatusOK, s.cfg.UI.SortClients)
	return nil
}

func (s *Server) handleExpireTimeEnabled(w http.ResponseWriter, r *http.Request) error {
	WriteJSON(w, http.StatusOK, s.cfg.WireGuard.EnableExpireTime)
	return nil
}
