//go:build linux

package vpn

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tunnelgate/internal/logging"
	"grimm.is/tunnelgate/internal/testutil"
)

// TestWireGuardDevice_Kernel drives a real interface end to end.
func TestWireGuardDevice_Kernel(t *testing.T) {
	testutil.RequireNetAdmin(t)

	const name = "tgtest0"
	logger := logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
	dev := NewWireGuardDevice(logger)
	t.Cleanup(func() {
		_ = dev.Down(name)
		_ = dev.Close()
	})

	serverPriv, _, err := GenerateKeyPair()
	require.NoError(t, err)
	_, peerPub, err := GenerateKeyPair()
	require.NoError(t, err)
	psk, err := GeneratePresharedKey()
	require.NoError(t, err)

	cfg := InterfaceConfig{
		Name:       name,
		PrivateKey: serverPriv,
		ListenPort: 51899,
		Address:    "10.250.0.1/24",
		MTU:        1420,
		Peers: []PeerConfig{{
			Name:         "peer",
			PublicKey:    peerPub,
			PresharedKey: psk,
			AllowedIPs:   []string{"10.250.0.2/32"},
		}},
	}

	ctx := context.Background()
	require.NoError(t, dev.Sync(ctx, cfg))
	require.NoError(t, dev.Sync(ctx, cfg), "sync is idempotent")
	assert.True(t, InterfaceExists(name))

	peers, err := dev.Peers(ctx, name)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, peerPub, peers[0].PublicKey)

	cfg.Peers = nil
	require.NoError(t, dev.Sync(ctx, cfg))
	peers, err = dev.Peers(ctx, name)
	require.NoError(t, err)
	assert.Empty(t, peers, "sync replaces the peer set")

	require.NoError(t, dev.Down(name))
	assert.False(t, InterfaceExists(name))
	assert.NoError(t, dev.Down(name), "down on a missing interface is a no-op")
}
