package roster

import (
	"context"
	"fmt"
	"time"
)

// PeerMetrics is the traffic state of one client.
type PeerMetrics struct {
	ID              ClientID
	Name            string
	Address         string
	Enabled         bool
	SentBytes       uint64
	ReceivedBytes   uint64
	LatestHandshake time.Time
}

// Metrics is a point-in-time view of the roster for exporters.
type Metrics struct {
	Interface  string
	Configured int
	Enabled    int
	Connected  int
	Peers      []PeerMetrics
}

// MetricsJSON is the body of the JSON metrics endpoint.
type MetricsJSON struct {
	ConfiguredPeers int `json:"wireguard_configured_peers"`
	EnabledPeers    int `json:"wireguard_enabled_peers"`
	ConnectedPeers  int `json:"wireguard_connected_peers"`
}

// connectedWindow is how recent a handshake must be to count as connected.
const connectedWindow = 10 * time.Minute

// GetMetrics collects per-peer traffic and the peer counters.
func (r *Roster) GetMetrics(ctx context.Context) (*Metrics, error) {
	r.mu.Lock()
	all, err := r.clients.List()
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}

	stats := r.peerStats(ctx)
	now := r.clock.Now()

	m := &Metrics{Interface: r.cfg.Interface, Configured: len(all)}
	for _, c := range sortedClients(all) {
		p := PeerMetrics{
			ID:      c.ID,
			Name:    c.Name,
			Address: c.Address,
			Enabled: c.Enabled,
		}
		if c.Enabled {
			m.Enabled++
		}
		if st, ok := stats[c.PublicKey]; ok {
			p.SentBytes = st.TransferTx
			p.ReceivedBytes = st.TransferRx
			p.LatestHandshake = st.LatestHandshake
			if !st.LatestHandshake.IsZero() && now.Sub(st.LatestHandshake) < connectedWindow {
				m.Connected++
			}
		}
		m.Peers = append(m.Peers, p)
	}
	return m, nil
}

// GetMetricsJSON returns only the peer counters.
func (r *Roster) GetMetricsJSON(ctx context.Context) (*MetricsJSON, error) {
	m, err := r.GetMetrics(ctx)
	if err != nil {
		return nil, err
	}
	return &MetricsJSON{
		ConfiguredPeers: m.Configured,
		EnabledPeers:    m.Enabled,
		ConnectedPeers:  m.Connected,
	}, nil
}
