package testutil

import (
	"os"
	"testing"
)

// NetTestEnv enables tests that create real network interfaces.
const NetTestEnv = "TUNNELGATE_NET_TEST"

// RequireNetAdmin skips the test unless NetTestEnv is set. Such tests need
// CAP_NET_ADMIN and a kernel with WireGuard support, so they only run in a
// throwaway VM or container.
func RequireNetAdmin(t *testing.T) {
	t.Helper()
	if os.Getenv(NetTestEnv) == "" {
		t.Skipf("Skipping test: requires %s environment", NetTestEnv)
	}
}
