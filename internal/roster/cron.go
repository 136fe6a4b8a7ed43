package roster

import (
	"context"
	"fmt"
)

// CronJobEveryMinute disables clients whose expiry has passed (when expiry
// is enabled) and drops one-time links that outlived their TTL. The device
// is re-synced only when something changed.
func (r *Roster) CronJobEveryMinute(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.clients.List()
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}

	now := r.clock.Now()
	changed := 0
	for _, c := range sortedClients(all) {
		dirty := false

		if r.cfg.EnableExpireTime && c.Enabled && c.ExpiredAt != nil && !now.Before(*c.ExpiredAt) {
			c.Enabled = false
			dirty = true
			r.logger.Info("client expired", "id", c.ID, "name", c.Name)
		}
		if c.OneTimeLinkExpiresAt != nil && !now.Before(*c.OneTimeLinkExpiresAt) {
			c.OneTimeLink = ""
			c.OneTimeLinkExpiresAt = nil
			dirty = true
		}

		if dirty {
			c.UpdatedAt = now
			if err := r.clients.Put(string(c.ID), c); err != nil {
				return fmt.Errorf("save client %s: %w", c.ID, err)
			}
			changed++
		}
	}

	if changed == 0 {
		return nil
	}
	r.logger.Debug("maintenance updated clients", "count", changed)
	return r.syncLocked(ctx)
}
