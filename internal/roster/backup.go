package roster

import (
	"context"
	"encoding/json"
	"fmt"

	"grimm.is/tunnelgate/internal/state"
	"grimm.is/tunnelgate/internal/validation"
	"grimm.is/tunnelgate/internal/vpn"
)

// Backup is the portable form of the whole roster.
type Backup struct {
	Server  *Server            `json:"server"`
	Clients map[string]*Client `json:"clients"`
}

// BackupConfiguration returns the server keys and every client as JSON.
func (r *Roster) BackupConfiguration(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	srv, err := r.loadServer()
	if err != nil {
		return "", err
	}
	clients, err := r.clients.List()
	if err != nil {
		return "", fmt.Errorf("list clients: %w", err)
	}

	data, err := json.MarshalIndent(Backup{Server: srv, Clients: clients}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}
	return string(data), nil
}

// RestoreConfiguration replaces the server keys and the full client list
// with the contents of a backup, then re-syncs the device. Nothing is
// changed when the backup does not validate.
func (r *Roster) RestoreConfiguration(ctx context.Context, data string) error {
	var b Backup
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return fmt.Errorf("%w: malformed backup: %v", ErrInvalidInput, err)
	}
	if err := validateBackup(&b); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	clientEntries, err := r.clients.Encode(b.Clients)
	if err != nil {
		return err
	}
	serverEntries, err := r.server.Encode(map[string]*Server{serverKey: b.Server})
	if err != nil {
		return err
	}

	if err := r.store.ReplaceBuckets(map[string]map[string][]byte{
		state.BucketClients: clientEntries,
		state.BucketServer:  serverEntries,
	}); err != nil {
		return fmt.Errorf("restore roster: %w", err)
	}

	r.logger.Audit("roster.restore", r.cfg.Interface, map[string]any{"clients": len(b.Clients)})
	return r.syncLocked(ctx)
}

func validateBackup(b *Backup) error {
	if b.Server == nil {
		return fmt.Errorf("%w: backup has no server section", ErrInvalidInput)
	}
	pub, err := vpn.PublicKey(b.Server.PrivateKey)
	if err != nil {
		return fmt.Errorf("%w: server: %v", ErrInvalidInput, err)
	}
	if b.Server.PublicKey == "" {
		b.Server.PublicKey = pub
	}
	if err := validation.ValidateClientAddress(b.Server.Address); err != nil {
		return fmt.Errorf("%w: server: %v", ErrInvalidInput, err)
	}

	if b.Clients == nil {
		b.Clients = map[string]*Client{}
	}
	for key, c := range b.Clients {
		if c == nil {
			return fmt.Errorf("%w: client %q is empty", ErrInvalidInput, key)
		}
		if c.ID == "" {
			c.ID = ClientID(key)
		}
		if string(c.ID) != key {
			return fmt.Errorf("%w: client key %q does not match id %q", ErrInvalidInput, key, c.ID)
		}
		if _, err := validation.SanitizeKey(key); err != nil {
			return fmt.Errorf("%w: client id %q", ErrInvalidInput, key)
		}
		if err := validation.ValidateClientAddress(c.Address); err != nil {
			return fmt.Errorf("%w: client %s: %v", ErrInvalidInput, key, err)
		}
		if c.PublicKey == "" {
			return fmt.Errorf("%w: client %s has no public key", ErrInvalidInput, key)
		}
	}
	return nil
}
