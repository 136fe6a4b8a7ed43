package vpn

import (
	"context"
	"slices"
	"sync"
)

// MemoryDevice is a Device that keeps configuration in memory and never
// touches the host. It backs WG_DEVICE_SYNC=false and tests.
type MemoryDevice struct {
	mu      sync.Mutex
	configs map[string]InterfaceConfig
	stats   map[string]PeerStatus
	syncs   int
	err     error
}

// NewMemoryDevice creates an empty in-memory device.
func NewMemoryDevice() *MemoryDevice {
	return &MemoryDevice{
		configs: make(map[string]InterfaceConfig),
		stats:   make(map[string]PeerStatus),
	}
}

// Sync records cfg as the running configuration.
func (m *MemoryDevice) Sync(ctx context.Context, cfg InterfaceConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	cfg.Peers = slices.Clone(cfg.Peers)
	m.configs[cfg.Name] = cfg
	m.syncs++
	return nil
}

// Peers reports one entry per configured peer, merged with any stats set
// through SetPeerStatus.
func (m *MemoryDevice) Peers(ctx context.Context, name string) ([]PeerStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.configs[name]
	if !ok {
		return nil, nil
	}
	out := make([]PeerStatus, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		st, ok := m.stats[p.PublicKey]
		if !ok {
			st = PeerStatus{PublicKey: p.PublicKey, PersistentKeepalive: p.PersistentKeepalive}
		}
		out = append(out, st)
	}
	return out, nil
}

// Down forgets the interface.
func (m *MemoryDevice) Down(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.configs, name)
	return nil
}

// Close is a no-op.
func (m *MemoryDevice) Close() error { return nil }

// Config returns the last synced configuration for name.
func (m *MemoryDevice) Config(name string) (InterfaceConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[name]
	return cfg, ok
}

// SyncCount returns how many times Sync succeeded.
func (m *MemoryDevice) SyncCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncs
}

// SetPeerStatus overrides the live statistics reported for a peer.
func (m *MemoryDevice) SetPeerStatus(st PeerStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[st.PublicKey] = st
}

// FailWith makes subsequent Sync calls return err. A nil err clears it.
func (m *MemoryDevice) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
