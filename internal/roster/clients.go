package roster

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"grimm.is/tunnelgate/internal/validation"
	"grimm.is/tunnelgate/internal/vpn"
)

// maxHost is the last usable host number in the /24 address template.
const maxHost = 254

// ClientView is a client as listed to the operator: the persisted record
// without secrets, merged with live device statistics.
type ClientView struct {
	ID                   ClientID   `json:"id"`
	Name                 string     `json:"name"`
	Enabled              bool       `json:"enabled"`
	Address              string     `json:"address"`
	PublicKey            string     `json:"publicKey"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	ExpiredAt            *time.Time `json:"expiredAt"`
	AllowedIPs           string     `json:"allowedIPs"`
	OneTimeLink          string     `json:"oneTimeLink,omitempty"`
	OneTimeLinkExpiresAt *time.Time `json:"oneTimeLinkExpiresAt,omitempty"`
	DownloadableConfig   bool       `json:"downloadableConfig"`
	PersistentKeepalive  *int       `json:"persistentKeepalive"`
	LatestHandshakeAt    *time.Time `json:"latestHandshakeAt"`
	Endpoint             *string    `json:"endpoint"`
	TransferRx           *uint64    `json:"transferRx"`
	TransferTx           *uint64    `json:"transferTx"`
}

func sortedClients(m map[string]*Client) []*Client {
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetClients lists every client in creation order with live statistics.
// Statistics are omitted when the device cannot be queried.
func (r *Roster) GetClients(ctx context.Context) ([]ClientView, error) {
	r.mu.Lock()
	all, err := r.clients.List()
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}

	stats := r.peerStats(ctx)

	views := make([]ClientView, 0, len(all))
	for _, c := range sortedClients(all) {
		v := ClientView{
			ID:                   c.ID,
			Name:                 c.Name,
			Enabled:              c.Enabled,
			Address:              c.Address,
			PublicKey:            c.PublicKey,
			CreatedAt:            c.CreatedAt,
			UpdatedAt:            c.UpdatedAt,
			ExpiredAt:            c.ExpiredAt,
			AllowedIPs:           c.Address + "/32",
			OneTimeLink:          c.OneTimeLink,
			OneTimeLinkExpiresAt: c.OneTimeLinkExpiresAt,
			DownloadableConfig:   c.PrivateKey != "",
		}
		if st, ok := stats[c.PublicKey]; ok {
			v.TransferRx = &st.TransferRx
			v.TransferTx = &st.TransferTx
			if st.Endpoint != "" {
				v.Endpoint = &st.Endpoint
			}
			if !st.LatestHandshake.IsZero() {
				v.LatestHandshakeAt = &st.LatestHandshake
			}
			if st.PersistentKeepalive > 0 {
				v.PersistentKeepalive = &st.PersistentKeepalive
			}
		}
		views = append(views, v)
	}
	return views, nil
}

// peerStats returns the device's live statistics keyed by public key.
func (r *Roster) peerStats(ctx context.Context) map[string]vpn.PeerStatus {
	peers, err := r.device.Peers(ctx, r.cfg.Interface)
	if err != nil {
		r.logger.Debug("failed to read peer statistics", "error", err)
		return nil
	}
	out := make(map[string]vpn.PeerStatus, len(peers))
	for _, p := range peers {
		out[p.PublicKey] = p
	}
	return out
}

// GetClient returns the persisted record for id.
func (r *Roster) GetClient(ctx context.Context, id ClientID) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadClient(id)
}

// CreateClient allocates the next free address, generates keys and enables
// the new client. expiredDate is optional (YYYY-MM-DD or RFC 3339).
func (r *Roster) CreateClient(ctx context.Context, name, expiredDate string) (*Client, error) {
	name = strings.TrimSpace(name)
	if err := validation.ValidateClientName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	expires, err := parseExpireDate(expiredDate)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.clients.List()
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	address, err := r.nextAddress(all)
	if err != nil {
		return nil, err
	}

	priv, pub, err := vpn.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	psk, err := vpn.GeneratePresharedKey()
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	c := &Client{
		ID:           NewClientID(),
		Name:         name,
		Enabled:      true,
		Address:      address,
		PrivateKey:   priv,
		PublicKey:    pub,
		PreSharedKey: psk,
		CreatedAt:    now,
		ExpiredAt:    expires,
	}
	if err := r.saveClientLocked(ctx, c); err != nil {
		return nil, err
	}

	r.logger.Audit("client.create", string(c.ID), map[string]any{"name": c.Name, "address": c.Address})
	return c, nil
}

// nextAddress returns the lowest unused host address in the template.
func (r *Roster) nextAddress(all map[string]*Client) (string, error) {
	used := make(map[string]struct{}, len(all))
	for _, c := range all {
		used[c.Address] = struct{}{}
	}
	for host := 2; host <= maxHost; host++ {
		candidate := r.addressFor(host)
		if _, taken := used[candidate]; !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: maximum number of clients reached", ErrInvalidInput)
}

// DeleteClient removes a client. Deleting an unknown client is not an error.
func (r *Roster) DeleteClient(ctx context.Context, id ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.clients.Delete(string(id)); err != nil {
		return fmt.Errorf("delete client %s: %w", id, err)
	}
	if err := r.syncLocked(ctx); err != nil {
		return err
	}

	r.logger.Audit("client.delete", string(id), nil)
	return nil
}

// EnableClient marks a client enabled and adds it to the device.
func (r *Roster) EnableClient(ctx context.Context, id ClientID) error {
	return r.update(ctx, id, "client.enable", func(c *Client) error {
		c.Enabled = true
		return nil
	})
}

// DisableClient marks a client disabled and removes it from the device.
func (r *Roster) DisableClient(ctx context.Context, id ClientID) error {
	return r.update(ctx, id, "client.disable", func(c *Client) error {
		c.Enabled = false
		return nil
	})
}

// UpdateClientName renames a client.
func (r *Roster) UpdateClientName(ctx context.Context, id ClientID, name string) error {
	name = strings.TrimSpace(name)
	if err := validation.ValidateClientName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return r.update(ctx, id, "client.rename", func(c *Client) error {
		c.Name = name
		return nil
	})
}

// UpdateClientAddress moves a client to another IPv4 tunnel address.
func (r *Roster) UpdateClientAddress(ctx context.Context, id ClientID, address string) error {
	address = strings.TrimSpace(address)
	if err := validation.ValidateClientAddress(address); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return r.update(ctx, id, "client.address", func(c *Client) error {
		c.Address = address
		return nil
	})
}

// UpdateClientExpireDate sets or clears (empty string) a client's expiry.
func (r *Roster) UpdateClientExpireDate(ctx context.Context, id ClientID, expireDate string) error {
	expires, err := parseExpireDate(expireDate)
	if err != nil {
		return err
	}
	return r.update(ctx, id, "client.expire", func(c *Client) error {
		c.ExpiredAt = expires
		return nil
	})
}

// update applies fn to a client under the lock, then persists and syncs.
func (r *Roster) update(ctx context.Context, id ClientID, action string, fn func(*Client) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.loadClient(id)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	if err := r.saveClientLocked(ctx, c); err != nil {
		return err
	}

	r.logger.Audit(action, string(id), nil)
	return nil
}

// parseExpireDate accepts "", a calendar date (expiring at the end of that
// day, local time) or an RFC 3339 timestamp.
func parseExpireDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		end := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), time.Local)
		return &end, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expire date %q", ErrInvalidInput, s)
	}
	return &t, nil
}
