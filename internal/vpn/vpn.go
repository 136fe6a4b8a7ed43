// Package vpn drives the WireGuard interface that backs the client roster.
//
// The roster never touches the kernel directly. It hands a complete
// InterfaceConfig to a Device, which replaces the running peer set in one
// step, and reads back per-peer transfer counters for metrics.
package vpn

import (
	"context"
	"encoding/json"
	"net"
	"time"
)

// Device applies interface configuration and reports live peer state.
type Device interface {
	// Sync makes the running interface match cfg, creating it if needed.
	Sync(ctx context.Context, cfg InterfaceConfig) error

	// Peers returns live statistics for every peer on the interface.
	Peers(ctx context.Context, name string) ([]PeerStatus, error)

	// Down removes the interface.
	Down(name string) error

	// Close releases any handles held by the device.
	Close() error
}

// InterfaceConfig is the desired state of a WireGuard interface.
type InterfaceConfig struct {
	Name       string       `json:"name"`
	PrivateKey string       `json:"private_key,omitempty"`
	ListenPort int          `json:"listen_port,omitempty"`
	Address    string       `json:"address,omitempty"` // CIDR, e.g. 10.8.0.1/24
	MTU        int          `json:"mtu,omitempty"`
	Peers      []PeerConfig `json:"peers,omitempty"`
}

// PeerConfig describes one enabled client on the server interface.
type PeerConfig struct {
	Name                string   `json:"name"`
	PublicKey           string   `json:"public_key"`
	PresharedKey        string   `json:"preshared_key,omitempty"`
	AllowedIPs          []string `json:"allowed_ips"`
	PersistentKeepalive int      `json:"persistent_keepalive,omitempty"`
}

// PeerStatus represents a peer's current status.
type PeerStatus struct {
	PublicKey           string    `json:"public_key"`
	Endpoint            string    `json:"endpoint,omitempty"`
	LatestHandshake     time.Time `json:"latest_handshake"`
	TransferRx          uint64    `json:"transfer_rx"`
	TransferTx          uint64    `json:"transfer_tx"`
	PersistentKeepalive int       `json:"persistent_keepalive,omitempty"`
}

// MarshalJSON masks the private key.
// Mitigation: CWE-200: Exposure of Sensitive Information
func (c InterfaceConfig) MarshalJSON() ([]byte, error) {
	type Alias InterfaceConfig
	aux := &struct {
		Alias
		PrivateKey string `json:"private_key,omitempty"`
	}{
		Alias: (Alias)(c),
	}
	if c.PrivateKey != "" {
		aux.PrivateKey = "******"
	}
	return json.Marshal(aux)
}

// MarshalJSON masks the preshared key.
// Mitigation: CWE-200: Exposure of Sensitive Information
func (p PeerConfig) MarshalJSON() ([]byte, error) {
	type Alias PeerConfig
	aux := &struct {
		Alias
		PresharedKey string `json:"preshared_key,omitempty"`
	}{
		Alias: (Alias)(p),
	}
	if p.PresharedKey != "" {
		aux.PresharedKey = "******"
	}
	return json.Marshal(aux)
}

// InterfaceExists checks if a network interface exists.
func InterfaceExists(name string) bool {
	_, err := net.InterfaceByName(name)
	return err == nil
}
