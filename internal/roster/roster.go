// Package roster owns the WireGuard client list: persistence, address
// allocation, device sync, config and QR rendering, one-time links,
// backup/restore, metrics and the periodic maintenance job.
//
// All mutations are serialized by the roster's lock and persisted to the
// state store before the device is re-synced. Handlers and the maintenance
// job may call into the roster concurrently.
package roster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"grimm.is/tunnelgate/internal/clock"
	"grimm.is/tunnelgate/internal/logging"
	"grimm.is/tunnelgate/internal/state"
	"grimm.is/tunnelgate/internal/vpn"
)

var (
	// ErrClientNotFound is returned when no client has the given ID.
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidInput wraps every validation failure on caller-supplied data.
	ErrInvalidInput = errors.New("invalid input")
)

// serverKey is the single key used in the server bucket.
const serverKey = "server"

// ClientID identifies a client. New IDs are random UUIDs.
type ClientID string

// NewClientID returns a fresh random ID.
func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

func (id ClientID) String() string { return string(id) }

// Client is the persisted record of one peer.
type Client struct {
	ID                   ClientID   `json:"id"`
	Name                 string     `json:"name"`
	Enabled              bool       `json:"enabled"`
	Address              string     `json:"address"`
	PrivateKey           string     `json:"privateKey,omitempty"`
	PublicKey            string     `json:"publicKey"`
	PreSharedKey         string     `json:"preSharedKey,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	ExpiredAt            *time.Time `json:"expiredAt"`
	OneTimeLink          string     `json:"oneTimeLink,omitempty"`
	OneTimeLinkExpiresAt *time.Time `json:"oneTimeLinkExpiresAt,omitempty"`
}

// Server holds the interface keypair and tunnel address.
type Server struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
	Address    string `json:"address"`
}

// Config carries the deployment settings the roster renders into configs.
type Config struct {
	Interface           string // tunnel interface, e.g. wg0
	Path                string // directory for <interface>.conf; empty disables the file
	Host                string
	Port                int
	ConfigPort          int
	MTU                 int
	PersistentKeepalive int
	DefaultAddress      string // template ending in "x", e.g. 10.8.0.x
	DefaultDNS          string
	AllowedIPs          string
	PreUp               string
	PostUp              string
	PreDown             string
	PostDown            string
	EnableExpireTime    bool
	OneTimeLinkTTL      time.Duration
}

// DefaultOneTimeLinkTTL is how long a generated link stays redeemable.
const DefaultOneTimeLinkTTL = 5 * time.Minute

// Roster is the client collection behind the administrative API.
type Roster struct {
	cfg     Config
	clients *state.Bucket[Client]
	server  *state.Bucket[Server]
	store   state.Store
	device  vpn.Device
	clock   clock.Clock
	logger  *logging.Logger

	mu sync.Mutex
}

// New creates a roster over store and device. Call Init before use.
func New(cfg Config, store state.Store, device vpn.Device, clk clock.Clock, logger *logging.Logger) (*Roster, error) {
	if cfg.Interface == "" {
		cfg.Interface = "wg0"
	}
	if cfg.DefaultAddress == "" {
		cfg.DefaultAddress = "10.8.0.x"
	}
	if cfg.OneTimeLinkTTL <= 0 {
		cfg.OneTimeLinkTTL = DefaultOneTimeLinkTTL
	}
	if logger == nil {
		logger = logging.Default()
	}

	clients, err := state.NewBucket[Client](store, state.BucketClients)
	if err != nil {
		return nil, err
	}
	server, err := state.NewBucket[Server](store, state.BucketServer)
	if err != nil {
		return nil, err
	}

	return &Roster{
		cfg:     cfg,
		clients: clients,
		server:  server,
		store:   store,
		device:  device,
		clock:   clock.OrReal(clk),
		logger:  logger.WithComponent("roster"),
	}, nil
}

// Init loads the server keypair, generating it on first start, then writes
// the server config and syncs the device.
func (r *Roster) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	srv, err := r.server.Get(serverKey)
	switch {
	case errors.Is(err, state.ErrNotFound):
		priv, pub, err := vpn.GenerateKeyPair()
		if err != nil {
			return err
		}
		srv = &Server{
			PrivateKey: priv,
			PublicKey:  pub,
			Address:    r.addressFor(1),
		}
		if err := r.server.Put(serverKey, srv); err != nil {
			return fmt.Errorf("save server keys: %w", err)
		}
		r.logger.Info("generated server keypair", "public_key", srv.PublicKey, "address", srv.Address)
	case err != nil:
		return fmt.Errorf("load server keys: %w", err)
	}

	return r.syncLocked(ctx)
}

// Shutdown brings the interface down and releases the device.
func (r *Roster) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.device.Down(r.cfg.Interface)
	if cerr := r.device.Close(); err == nil {
		err = cerr
	}
	return err
}

// InterfaceName returns the managed interface name.
func (r *Roster) InterfaceName() string { return r.cfg.Interface }

func (r *Roster) addressFor(host int) string {
	return strings.TrimSuffix(r.cfg.DefaultAddress, "x") + strconv.Itoa(host)
}

func (r *Roster) loadServer() (*Server, error) {
	srv, err := r.server.Get(serverKey)
	if err != nil {
		return nil, fmt.Errorf("load server keys: %w", err)
	}
	return srv, nil
}

func (r *Roster) loadClient(id ClientID) (*Client, error) {
	c, err := r.clients.Get(string(id))
	if errors.Is(err, state.ErrNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load client %s: %w", id, err)
	}
	return c, nil
}

// saveClientLocked persists c and re-syncs the device.
func (r *Roster) saveClientLocked(ctx context.Context, c *Client) error {
	c.UpdatedAt = r.clock.Now()
	if err := r.clients.Put(string(c.ID), c); err != nil {
		return fmt.Errorf("save client %s: %w", c.ID, err)
	}
	return r.syncLocked(ctx)
}

// syncLocked writes the server config file and pushes the enabled peers to
// the device. Caller holds r.mu.
func (r *Roster) syncLocked(ctx context.Context) error {
	srv, err := r.loadServer()
	if err != nil {
		return err
	}
	clients, err := r.clients.List()
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}

	if r.cfg.Path != "" {
		path := filepath.Join(r.cfg.Path, r.cfg.Interface+".conf")
		if err := os.WriteFile(path, []byte(r.renderServerConfig(srv, clients)), 0o600); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	ifc := vpn.InterfaceConfig{
		Name:       r.cfg.Interface,
		PrivateKey: srv.PrivateKey,
		ListenPort: r.cfg.Port,
		Address:    srv.Address + "/24",
	}
	for _, c := range sortedClients(clients) {
		if !c.Enabled {
			continue
		}
		ifc.Peers = append(ifc.Peers, vpn.PeerConfig{
			Name:         c.Name,
			PublicKey:    c.PublicKey,
			PresharedKey: c.PreSharedKey,
			AllowedIPs:   []string{c.Address + "/32"},
		})
	}

	if err := r.device.Sync(ctx, ifc); err != nil {
		return fmt.Errorf("sync %s: %w", r.cfg.Interface, err)
	}
	return nil
}
