package api

import (
	"net/http"
)

// handleMetrics serves the Prometheus exposition. The body is empty while
// metrics are switched off.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) error {
	if !s.cfg.Metrics.Enabled || s.metrics == nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		return nil
	}
	s.metrics.Handler().ServeHTTP(w, r)
	return nil
}

func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) error {
	if !s.cfg.Metrics.Enabled {
		w.WriteHeader(http.StatusOK)
		return nil
	}
	m, err := s.roster.GetMetricsJSON(r.Context())
	if err != nil {
		return err
	}
	WriteJSON(w, http.StatusOK, m)
	return nil
}
