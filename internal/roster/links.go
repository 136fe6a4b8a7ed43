package roster

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GenerateOneTimeLink attaches a fresh single-use token to a client,
// replacing any previous one. The token expires after the configured TTL.
func (r *Roster) GenerateOneTimeLink(ctx context.Context, id ClientID) (string, error) {
	token := uuid.NewString()

	err := r.update(ctx, id, "client.one_time_link", func(c *Client) error {
		expires := r.clock.Now().Add(r.cfg.OneTimeLinkTTL)
		c.OneTimeLink = token
		c.OneTimeLinkExpiresAt = &expires
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// EraseOneTimeLink clears a client's token. Erasing an already cleared
// link is a no-op.
func (r *Roster) EraseOneTimeLink(ctx context.Context, id ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.loadClient(id)
	if err != nil {
		return err
	}
	if c.OneTimeLink == "" && c.OneTimeLinkExpiresAt == nil {
		return nil
	}

	c.OneTimeLink = ""
	c.OneTimeLinkExpiresAt = nil
	c.UpdatedAt = r.clock.Now()
	if err := r.clients.Put(string(c.ID), c); err != nil {
		return fmt.Errorf("save client %s: %w", c.ID, err)
	}
	return nil
}

// FindOneTimeLink scans the roster for a client holding token. Expired
// tokens never match.
func (r *Roster) FindOneTimeLink(ctx context.Context, token string) (ClientID, bool, error) {
	if token == "" {
		return "", false, nil
	}

	r.mu.Lock()
	all, err := r.clients.List()
	r.mu.Unlock()
	if err != nil {
		return "", false, fmt.Errorf("list clients: %w", err)
	}

	now := r.clock.Now()
	for _, c := range all {
		if c.OneTimeLink != token {
			continue
		}
		if c.OneTimeLinkExpiresAt != nil && !now.Before(*c.OneTimeLinkExpiresAt) {
			return "", false, nil
		}
		return c.ID, true, nil
	}
	return "", false, nil
}
