package api

import (
	"errors"
	"net/http"

	"grimm.is/tunnelgate/internal/roster"
)

// --- WireGuard client handlers ---

type createClientRequest struct {
	Name        string `json:"name"`
	ExpiredDate string `json:"expiredDate"`
}

// clientID returns the sanitized clientId route parameter.
func clientID(r *http.Request) (roster.ClientID, error) {
	v, err := pathParam(r, "clientId")
	if err != nil {
		return "", err
	}
	return roster.ClientID(v), nil
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) error {
	clients, err := s.roster.GetClients(r.Context())
	if err != nil {
		return err
	}
	WriteJSON(w, http.StatusOK, clients)
	return nil
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) error {
	var req createClientRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if _, err := s.roster.CreateClient(r.Context(), req.Name, req.ExpiredDate); err != nil {
		return err
	}
	writeSuccess(w)
	return nil
}

// clientAction runs fn against the sanitized client ID and reports success.
func (s *Server) clientAction(fn func(r *http.Request, id roster.ClientID) error) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		id, err := clientID(r)
		if err != nil {
			return err
		}
		if err := fn(r, id); err != nil {
			return err
		}
		writeSuccess(w)
		return nil
	}
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) error {
	return s.clientAction(func(r *http.Request, id roster.ClientID) error {
		return s.roster.DeleteClient(r.Context(), id)
	})(w, r)
}

func (s *Server) handleEnableClient(w http.ResponseWriter, r *http.Request) error {
	return s.clientAction(func(r *http.Request, id roster.ClientID) error {
		return s.roster.EnableClient(r.Context(), id)
	})(w, r)
}

func (s *Server) handleDisableClient(w http.ResponseWriter, r *http.Request) error {
	return s.clientAction(func(r *http.Request, id roster.ClientID) error {
		return s.roster.DisableClient(r.Context(), id)
	})(w, r)
}

func (s *Server) handleGenerateOneTimeLink(w http.ResponseWriter, r *http.Request) error {
	if !s.links.Enabled() {
		return ErrInvalidState()
	}
	return s.clientAction(func(r *http.Request, id roster.ClientID) error {
		_, err := s.roster.GenerateOneTimeLink(r.Context(), id)
		return err
	})(w, r)
}

func (s *Server) handleUpdateName(w http.ResponseWriter, r *http.Request) error {
	return s.clientAction(func(r *http.Request, id roster.ClientID) error {
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		return s.roster.UpdateClientName(r.Context(), id, req.Name)
	})(w, r)
}

func (s *Server) handleUpdateAddress(w http.ResponseWriter, r *http.Request) error {
	return s.clientAction(func(r *http.Request, id roster.ClientID) error {
		var req struct {
			Address string `json:"address"`
		}
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		return s.roster.UpdateClientAddress(r.Context(), id, req.Address)
	})(w, r)
}

func (s *Server) handleUpdateExpireDate(w http.ResponseWriter, r *http.Request) error {
	return s.clientAction(func(r *http.Request, id roster.ClientID) error {
		var req struct {
			ExpireDate string `json:"expireDate"`
		}
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		return s.roster.UpdateClientExpireDate(r.Context(), id, req.ExpireDate)
	})(w, r)
}

func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) error {
	id, err := clientID(r)
	if err != nil {
		return err
	}
	svg, err := s.roster.GetClientQRCodeSVG(r.Context(), id)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(svg))
	return nil
}

func (s *Server) handleConfiguration(w http.ResponseWriter, r *http.Request) error {
	id, err := clientID(r)
	if err != nil {
		return err
	}
	client, err := s.roster.GetClient(r.Context(), id)
	if err != nil {
		return err
	}
	conf, err := s.roster.GetClientConfiguration(r.Context(), id)
	if err != nil {
		return err
	}
	writeAttachment(w, "text/plain", roster.ConfigFileName(client), conf)
	return nil
}

// handleOneTimeLink delivers a client config once, then erases the link.
func (s *Server) handleOneTimeLink(w http.ResponseWriter, r *http.Request) error {
	if !s.links.Enabled() {
		return ErrInvalidState()
	}
	token, err := pathParam(r, "token")
	if err != nil {
		return err
	}

	id, err := s.links.Resolve(r.Context(), token)
	if errors.Is(err, roster.ErrLinkNotFound) {
		return ErrNotFound("Not Found")
	}
	if err != nil {
		return err
	}

	conf, err := s.roster.GetClientConfiguration(r.Context(), id)
	if err != nil {
		return err
	}
	if err := s.links.Consume(r.Context(), id); err != nil {
		return err
	}

	s.logger.Audit("client.link_redeemed", string(id), map[string]any{"ip": s.auth.ClientIP(r)})
	writeAttachment(w, "text/plain", token+".conf", conf)
	return nil
}
