package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/tunnelgate/internal/roster"
)

// collectTimeout bounds one scrape of the roster.
const collectTimeout = 5 * time.Second

// RosterSource provides roster snapshots.
type RosterSource interface {
	GetMetrics(ctx context.Context) (*roster.Metrics, error)
}

// RosterCollector exports the WireGuard peer counters and per-peer traffic.
type RosterCollector struct {
	source RosterSource

	configured *prometheus.Desc
	enabled    *prometheus.Desc
	connected  *prometheus.Desc
	sent       *prometheus.Desc
	received   *prometheus.Desc
	handshake  *prometheus.Desc
}

// NewRosterCollector creates a collector reading from source on every scrape.
func NewRosterCollector(source RosterSource) *RosterCollector {
	peerLabels := []string{"interface", "enabled", "address", "name"}
	return &RosterCollector{
		source: source,
		configured: prometheus.NewDesc("wireguard_configured_peers",
			"Number of configured peers", []string{"interface"}, nil),
		enabled: prometheus.NewDesc("wireguard_enabled_peers",
			"Number of enabled peers", []string{"interface"}, nil),
		connected: prometheus.NewDesc("wireguard_connected_peers",
			"Number of peers with a recent handshake", []string{"interface"}, nil),
		sent: prometheus.NewDesc("wireguard_sent_bytes",
			"Bytes sent to the peer", peerLabels, nil),
		received: prometheus.NewDesc("wireguard_received_bytes",
			"Bytes received from the peer", peerLabels, nil),
		handshake: prometheus.NewDesc("wireguard_latest_handshake_seconds",
			"Unix time of the latest handshake with the peer", peerLabels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *RosterCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.configured
	ch <- c.enabled
	ch <- c.connected
	ch <- c.sent
	ch <- c.received
	ch <- c.handshake
}

// Collect implements prometheus.Collector.
func (c *RosterCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	m, err := c.source.GetMetrics(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.configured, err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.configured, prometheus.GaugeValue, float64(m.Configured), m.Interface)
	ch <- prometheus.MustNewConstMetric(c.enabled, prometheus.GaugeValue, float64(m.Enabled), m.Interface)
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, float64(m.Connected), m.Interface)

	for _, p := range m.Peers {
		labels := []string{m.Interface, strconv.FormatBool(p.Enabled), p.Address, p.Name}
		var handshake float64
		if !p.LatestHandshake.IsZero() {
			handshake = float64(p.LatestHandshake.Unix())
		}
		ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(p.SentBytes), labels...)
		ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(p.ReceivedBytes), labels...)
		ch <- prometheus.MustNewConstMetric(c.handshake, prometheus.GaugeValue, handshake, labels...)
	}
}
