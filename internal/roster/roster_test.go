package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tunnelgate/internal/clock"
	"grimm.is/tunnelgate/internal/logging"
	"grimm.is/tunnelgate/internal/state"
	"grimm.is/tunnelgate/internal/vpn"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	roster *Roster
	device *vpn.MemoryDevice
	clock  *clock.MockClock
	store  *state.SQLiteStore
	dir    string
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()

	clk := clock.NewMockClock(testEpoch)
	opts := state.DefaultOptions(":memory:")
	opts.CleanupInterval = 0
	opts.Clock = clk
	st, err := state.NewSQLiteStore(opts)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dir := t.TempDir()
	cfg := Config{
		Interface:           "wg0",
		Path:                dir,
		Host:                "vpn.example.com",
		Port:                51820,
		ConfigPort:          51820,
		PersistentKeepalive: 25,
		DefaultAddress:      "10.8.0.x",
		DefaultDNS:          "1.1.1.1",
		AllowedIPs:          "0.0.0.0/0, ::/0",
	}
	for _, m := range mutate {
		m(&cfg)
	}

	dev := vpn.NewMemoryDevice()
	logger := logging.New(logging.Config{Level: logging.LevelError, Output: os.Stderr})
	r, err := New(cfg, st, dev, clk, logger)
	require.NoError(t, err)
	require.NoError(t, r.Init(context.Background()))

	return &fixture{roster: r, device: dev, clock: clk, store: st, dir: dir}
}

func TestInit_GeneratesServerOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.roster.loadServer()
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.1", first.Address)

	require.NoError(t, f.roster.Init(ctx))
	second, err := f.roster.loadServer()
	require.NoError(t, err)
	assert.Equal(t, first.PrivateKey, second.PrivateKey)

	cfg, ok := f.device.Config("wg0")
	require.True(t, ok)
	assert.Equal(t, "10.8.0.1/24", cfg.Address)
	assert.Equal(t, 51820, cfg.ListenPort)
	assert.Empty(t, cfg.Peers)

	conf, err := os.ReadFile(filepath.Join(f.dir, "wg0.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(conf), "PrivateKey = "+first.PrivateKey)
}

func TestCreateClient_AllocatesAddresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.roster.CreateClient(ctx, "alice", "")
	require.NoError(t, err)
	b, err := f.roster.CreateClient(ctx, "bob", "2025-12-31")
	require.NoError(t, err)

	assert.Equal(t, "10.8.0.2", a.Address)
	assert.Equal(t, "10.8.0.3", b.Address)
	assert.True(t, a.Enabled)
	assert.NotEmpty(t, a.PrivateKey)
	assert.NotEmpty(t, a.PreSharedKey)
	assert.Nil(t, a.ExpiredAt)
	require.NotNil(t, b.ExpiredAt)
	assert.Equal(t, 23, b.ExpiredAt.Hour())
	assert.Equal(t, 31, b.ExpiredAt.Day())

	// Freed addresses are reused.
	require.NoError(t, f.roster.DeleteClient(ctx, a.ID))
	c, err := f.roster.CreateClient(ctx, "carol", "")
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.2", c.Address)

	cfg, _ := f.device.Config("wg0")
	assert.Len(t, cfg.Peers, 2)
}

func TestCreateClient_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.roster.CreateClient(ctx, "   ", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.roster.CreateClient(ctx, "ok", "31/12/2025")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateClient_Full(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.DefaultAddress = "10.9.0.x" })
	ctx := context.Background()

	for i := 2; i <= maxHost; i++ {
		id := fmt.Sprintf("c%d", i)
		require.NoError(t, f.roster.clients.Put(id, &Client{
			ID:      ClientID(id),
			Address: f.roster.addressFor(i),
		}))
	}
	_, err := f.roster.CreateClient(ctx, "one too many", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClientMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.roster.CreateClient(ctx, "alice", "")
	require.NoError(t, err)

	require.NoError(t, f.roster.DisableClient(ctx, c.ID))
	cfg, _ := f.device.Config("wg0")
	assert.Empty(t, cfg.Peers, "disabled clients are not synced")

	require.NoError(t, f.roster.EnableClient(ctx, c.ID))
	cfg, _ = f.device.Config("wg0")
	require.Len(t, cfg.Peers, 1)
	assert.Equal(t, []string{c.Address + "/32"}, cfg.Peers[0].AllowedIPs)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.roster.UpdateClientName(ctx, c.ID, "alice-laptop"))
	require.NoError(t, f.roster.UpdateClientAddress(ctx, c.ID, "10.8.0.50"))
	require.NoError(t, f.roster.UpdateClientExpireDate(ctx, c.ID, "2026-01-01T00:00:00Z"))

	got, err := f.roster.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice-laptop", got.Name)
	assert.Equal(t, "10.8.0.50", got.Address)
	require.NotNil(t, got.ExpiredAt)
	assert.Equal(t, testEpoch.Add(time.Minute), got.UpdatedAt)

	require.NoError(t, f.roster.UpdateClientExpireDate(ctx, c.ID, ""))
	got, _ = f.roster.GetClient(ctx, c.ID)
	assert.Nil(t, got.ExpiredAt)

	assert.ErrorIs(t, f.roster.UpdateClientAddress(ctx, c.ID, "not-an-ip"), ErrInvalidInput)
	assert.ErrorIs(t, f.roster.UpdateClientName(ctx, c.ID, ""), ErrInvalidInput)
}

func TestUnknownClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := ClientID("does-not-exist")

	_, err := f.roster.GetClient(ctx, missing)
	assert.ErrorIs(t, err, ErrClientNotFound)
	assert.ErrorIs(t, f.roster.EnableClient(ctx, missing), ErrClientNotFound)
	assert.ErrorIs(t, f.roster.DisableClient(ctx, missing), ErrClientNotFound)
	_, err = f.roster.GetClientConfiguration(ctx, missing)
	assert.ErrorIs(t, err, ErrClientNotFound)
	_, err = f.roster.GenerateOneTimeLink(ctx, missing)
	assert.ErrorIs(t, err, ErrClientNotFound)
	assert.NoError(t, f.roster.DeleteClient(ctx, missing))
}

func TestGetClients_MergesDeviceStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.roster.CreateClient(ctx, "alice", "")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	b, err := f.roster.CreateClient(ctx, "bob", "")
	require.NoError(t, err)

	handshake := testEpoch.Add(-time.Minute)
	f.device.SetPeerStatus(vpn.PeerStatus{
		PublicKey:       a.PublicKey,
		Endpoint:        "203.0.113.1:5000",
		LatestHandshake: handshake,
		TransferRx:      10,
		TransferTx:      20,
	})

	views, err := f.roster.GetClients(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, a.ID, views[0].ID)
	assert.Equal(t, b.ID, views[1].ID)

	require.NotNil(t, views[0].TransferRx)
	assert.Equal(t, uint64(10), *views[0].TransferRx)
	assert.Equal(t, "203.0.113.1:5000", *views[0].Endpoint)
	assert.Equal(t, handshake, *views[0].LatestHandshakeAt)
	assert.True(t, views[0].DownloadableConfig)
	assert.Nil(t, views[1].LatestHandshakeAt)

	raw, err := json.Marshal(views[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), a.PrivateKey)
	assert.NotContains(t, string(raw), a.PreSharedKey)
}

func TestOneTimeLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.roster.CreateClient(ctx, "alice", "")
	require.NoError(t, err)

	token, err := f.roster.GenerateOneTimeLink(ctx, c.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id, ok, err := f.roster.FindOneTimeLink(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.ID, id)

	require.NoError(t, f.roster.EraseOneTimeLink(ctx, c.ID))
	require.NoError(t, f.roster.EraseOneTimeLink(ctx, c.ID), "erase is idempotent")

	_, ok, err = f.roster.FindOneTimeLink(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = f.roster.FindOneTimeLink(ctx, "")
	assert.False(t, ok)
}

func TestOneTimeLinks_Expire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.roster.CreateClient(ctx, "alice", "")
	require.NoError(t, err)
	token, err := f.roster.GenerateOneTimeLink(ctx, c.ID)
	require.NoError(t, err)

	f.clock.Advance(DefaultOneTimeLinkTTL)
	_, ok, err := f.roster.FindOneTimeLink(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.roster.CronJobEveryMinute(ctx))
	got, _ := f.roster.GetClient(ctx, c.ID)
	assert.Empty(t, got.OneTimeLink)
	assert.Nil(t, got.OneTimeLinkExpiresAt)
}

func TestCron_ExpiresClients(t *testing.T) {
	tests := []struct {
		name        string
		enabled     bool
		wantEnabled bool
	}{
		{"expiry enabled", true, false},
		{"expiry disabled", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(c *Config) { c.EnableExpireTime = tt.enabled })
			ctx := context.Background()

			c, err := f.roster.CreateClient(ctx, "alice", "")
			require.NoError(t, err)
			require.NoError(t, f.roster.UpdateClientExpireDate(ctx, c.ID, testEpoch.Add(time.Hour).Format(time.RFC3339)))

			require.NoError(t, f.roster.CronJobEveryMinute(ctx))
			got, _ := f.roster.GetClient(ctx, c.ID)
			assert.True(t, got.Enabled, "not yet expired")

			f.clock.Advance(2 * time.Hour)
			require.NoError(t, f.roster.CronJobEveryMinute(ctx))
			got, _ = f.roster.GetClient(ctx, c.ID)
			assert.Equal(t, tt.wantEnabled, got.Enabled)
		})
	}
}

func TestCron_SyncsOnlyOnChange(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.EnableExpireTime = true })
	ctx := context.Background()

	before := f.device.SyncCount()
	require.NoError(t, f.roster.CronJobEveryMinute(ctx))
	assert.Equal(t, before, f.device.SyncCount())
}

func TestRenderClientConfig(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MTU = 1420 })
	ctx := context.Background()

	c, err := f.roster.CreateClient(ctx, "alice", "")
	require.NoError(t, err)
	srv, err := f.roster.loadServer()
	require.NoError(t, err)

	conf, err := f.roster.GetClientConfiguration(ctx, c.ID)
	require.NoError(t, err)

	for _, want := range []string{
		"[Interface]",
		"PrivateKey = " + c.PrivateKey,
		"Address = 10.8.0.2/24",
		"DNS = 1.1.1.1",
		"MTU = 1420",
		"[Peer]",
		"PublicKey = " + srv.PublicKey,
		"PresharedKey = " + c.PreSharedKey,
		"AllowedIPs = 0.0.0.0/0, ::/0",
		"PersistentKeepalive = 25",
		"Endpoint = vpn.example.com:51820",
	} {
		assert.Contains(t, conf, want)
	}
}

func TestRenderServerConfig_SkipsDisabled(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.PostUp = "iptables -A FORWARD -i wg0 -j ACCEPT" })
	ctx := context.Background()

	a, err := f.roster.CreateClient(ctx, "alice", "")
	require.NoError(t, err)
	b, err := f.roster.CreateClient(ctx, "bob", "")
	require.NoError(t, err)
	require.NoError(t, f.roster.DisableClient(ctx, b.ID))

	raw, err := os.ReadFile(filepath.Join(f.dir, "wg0.conf"))
	require.NoError(t, err)
	conf := string(raw)

	assert.Contains(t, conf, "PostUp = iptables -A FORWARD -i wg0 -j ACCEPT")
	assert.Contains(t, conf, "# Client: alice ("+string(a.ID)+")")
	assert.NotContains(t, conf, b.PublicKey)
}

func TestConfigFileName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"alice", "alice.conf"},
		{"Alice's  Phone!!", "Alice-s-Phone.conf"},
		{"a/../../b", "a-..-..-b.conf"},
		{"!!!", "id-1.conf"},
		{"", "id-1.conf"},
		{strings.Repeat("x", 40), strings.Repeat("x", 32) + ".conf"},
		{"v1.2+beta=ok_1", "v1.2+beta=ok_1.conf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConfigFileName(&Client{ID: "id-1", Name: tt.name})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetClientQRCodeSVG(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.roster.CreateClient(ctx, "alice", "")
	require.NoError(t, err)

	svg, err := f.roster.GetClientQRCodeSVG(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(svg, "<svg "))
	assert.True(t, strings.HasSuffix(svg, "</svg>"))
	assert.Contains(t, svg, `width="512"`)
	assert.Contains(t, svg, "h1v1h-1z")
}

func TestBackupRestore(t *testing.T) {
	src := newFixture(t)
	ctx := context.Background()

	a, err := src.roster.CreateClient(ctx, "alice", "")
	require.NoError(t, err)
	src.clock.Advance(time.Second)
	_, err = src.roster.CreateClient(ctx, "bob", "")
	require.NoError(t, err)

	backup, err := src.roster.BackupConfiguration(ctx)
	require.NoError(t, err)

	dst := newFixture(t)
	_, err = dst.roster.CreateClient(ctx, "stale", "")
	require.NoError(t, err)

	require.NoError(t, dst.roster.RestoreConfiguration(ctx, backup))

	views, err := dst.roster.GetClients(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "alice", views[0].Name)

	srcSrv, _ := src.roster.loadServer()
	dstSrv, _ := dst.roster.loadServer()
	assert.Equal(t, srcSrv.PrivateKey, dstSrv.PrivateKey)

	got, err := dst.roster.GetClient(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.PrivateKey, got.PrivateKey)

	cfg, _ := dst.device.Config("wg0")
	assert.Len(t, cfg.Peers, 2)
}

func TestRestore_RejectsInvalidBackup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.roster.CreateClient(ctx, "keep", "")
	require.NoError(t, err)
	srv, _ := f.roster.loadServer()

	tests := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"no server", `{"clients":{}}`},
		{"bad server key", `{"server":{"privateKey":"x","address":"10.8.0.1"},"clients":{}}`},
		{"mismatched id", `{"server":{"privateKey":"` + srv.PrivateKey + `","address":"10.8.0.1"},"clients":{"a":{"id":"b","address":"10.8.0.2","publicKey":"k"}}}`},
		{"forbidden id", `{"server":{"privateKey":"` + srv.PrivateKey + `","address":"10.8.0.1"},"clients":{"__proto__":{"address":"10.8.0.2","publicKey":"k"}}}`},
		{"bad address", `{"server":{"privateKey":"` + srv.PrivateKey + `","address":"10.8.0.1"},"clients":{"a":{"address":"nope","publicKey":"k"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.roster.RestoreConfiguration(ctx, tt.data)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err = f.roster.GetClient(ctx, c.ID)
	assert.NoError(t, err, "failed restores leave the roster untouched")
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.roster.CreateClient(ctx, "alice", "")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	b, err := f.roster.CreateClient(ctx, "bob", "")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.roster.CreateClient(ctx, "carol", "")
	require.NoError(t, err)
	require.NoError(t, f.roster.DisableClient(ctx, b.ID))

	f.device.SetPeerStatus(vpn.PeerStatus{
		PublicKey:       a.PublicKey,
		LatestHandshake: testEpoch.Add(-time.Minute),
		TransferRx:      100,
		TransferTx:      200,
	})

	m, err := f.roster.GetMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, "wg0", m.Interface)
	assert.Equal(t, 3, m.Configured)
	assert.Equal(t, 2, m.Enabled)
	assert.Equal(t, 1, m.Connected)
	require.Len(t, m.Peers, 3)
	assert.Equal(t, uint64(200), m.Peers[0].SentBytes)
	assert.Equal(t, uint64(100), m.Peers[0].ReceivedBytes)

	j, err := f.roster.GetMetricsJSON(ctx)
	require.NoError(t, err)
	assert.Equal(t, &MetricsJSON{ConfiguredPeers: 3, EnabledPeers: 2, ConnectedPeers: 1}, j)
}

func TestSyncFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.device.FailWith(errors.New("device busy"))

	_, err := f.roster.CreateClient(context.Background(), "alice", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")
}

func TestConcurrentCreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	addrs := make(chan string, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := f.roster.CreateClient(ctx, "client", "")
			if assert.NoError(t, err, "create %d", i) {
				addrs <- c.Address
			}
		}()
	}
	wg.Wait()
	close(addrs)

	seen := map[string]bool{}
	for a := range addrs {
		assert.False(t, seen[a], "duplicate address %s", a)
		seen[a] = true
	}
	assert.Len(t, seen, 10)
}
