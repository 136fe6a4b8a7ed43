package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tunnelgate/internal/auth"
)

func envMap(m map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func testHash(t *testing.T, password string) string {
	t.Helper()
	h, err := auth.HashPassword(password, 4)
	require.NoError(t, err)
	return h
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tunnelgate.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadWithLookup("", envMap(map[string]string{"WG_HOST": "vpn.example.com"}))
	require.NoError(t, err)

	assert.Equal(t, 51821, cfg.Port)
	assert.Equal(t, "0.0.0.0:51821", cfg.ListenAddr())
	assert.Equal(t, "en", cfg.Lang)
	assert.False(t, cfg.AuthEnabled())
	assert.Zero(t, cfg.Auth.MaxAge)
	assert.False(t, cfg.Metrics.Enabled)

	wg := cfg.WireGuard
	assert.Equal(t, "/etc/wireguard", wg.Path)
	assert.Equal(t, 51820, wg.Port)
	assert.Equal(t, 51820, wg.ConfigPort, "config port follows the listen port")
	assert.Equal(t, "10.8.0.x", wg.DefaultAddress)
	assert.Equal(t, "1.1.1.1", wg.DefaultDNS)
	assert.Equal(t, "0.0.0.0/0, ::/0", wg.AllowedIPs)
	assert.True(t, wg.DeviceSync)
	assert.Contains(t, wg.PostUp, "-s 10.8.0.0/24 -o eth0 -j MASQUERADE")
	assert.Contains(t, wg.PostUp, "--dport 51820")
	assert.Contains(t, wg.PostDown, "iptables -D FORWARD -o wg0 -j ACCEPT")
}

func TestLoad_MissingFileIsSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.hcl")
	cfg, err := LoadWithLookup(path, envMap(map[string]string{"WG_HOST": "h"}))
	require.NoError(t, err)
	assert.Equal(t, 51821, cfg.Port)
}

func TestLoad_Environment(t *testing.T) {
	hash := testHash(t, "secret")
	metricsHash := testHash(t, "scrape")

	cfg, err := LoadWithLookup("", envMap(map[string]string{
		"PORT":                        "8080",
		"WEBUI_HOST":                  "127.0.0.1",
		"RELEASE":                     "14",
		"PASSWORD_HASH":               hash,
		"MAX_AGE":                     "60",
		"ENABLE_PROMETHEUS_METRICS":   "true",
		"PROMETHEUS_METRICS_PASSWORD": metricsHash,
		"UI_TRAFFIC_STATS":            "true",
		"UI_CHART_TYPE":               "2",
		"UI_ENABLE_SORT_CLIENTS":      "yes",
		"WG_HOST":                     "vpn.example.com",
		"WG_PORT":                     "443",
		"WG_DEVICE":                   "ens3",
		"WG_MTU":                      "1420",
		"WG_DEFAULT_ADDRESS":          "10.6.0.x",
		"WG_DEFAULT_DNS":              "",
		"WG_ENABLE_ONE_TIME_LINKS":    "true",
		"WG_ENABLE_EXPIRES_TIME":      "true",
		"WG_DEVICE_SYNC":              "false",
		"TRUSTED_PROXIES":             "10.0.0.1, 172.16.0.0/12,",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr())
	assert.Equal(t, "14", cfg.Release)
	assert.True(t, cfg.AuthEnabled())
	assert.Equal(t, time.Hour, cfg.Auth.MaxAge)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, metricsHash, cfg.Metrics.PasswordHash)
	assert.True(t, cfg.UI.TrafficStats)
	assert.Equal(t, 2, cfg.UI.ChartType)
	assert.False(t, cfg.UI.SortClients, "only the exact string true enables a flag")
	assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.Auth.TrustedProxies)

	wg := cfg.WireGuard
	assert.Equal(t, 443, wg.Port)
	assert.Equal(t, 443, wg.ConfigPort)
	assert.Equal(t, 1420, wg.MTU)
	assert.Equal(t, "1.1.1.1", wg.DefaultDNS, "empty variables count as unset")
	assert.True(t, wg.EnableOneTimeLinks)
	assert.True(t, wg.EnableExpireTime)
	assert.False(t, wg.DeviceSync)
	assert.Contains(t, wg.PostUp, "-s 10.6.0.0/24 -o ens3")
}

func TestLoad_LegacyPasswordIsFatal(t *testing.T) {
	_, err := LoadWithLookup("", envMap(map[string]string{
		"WG_HOST":  "h",
		"PASSWORD": "hunter2",
	}))
	require.ErrorIs(t, err, ErrLegacyPassword)
	assert.Equal(t, "DO NOT USE PASSWORD ENVIRONMENT VARIABLE. USE PASSWORD_HASH INSTEAD.", err.Error())
}

func TestLoad_File(t *testing.T) {
	hash := testHash(t, "secret")
	path := writeFile(t, `
port    = 9000
release = "7"

auth {
  password_hash   = env("ADMIN_HASH")
  max_age         = 30
  trusted_proxies = ["127.0.0.1"]
}

ui {
  chart_type = 1
}

wireguard {
  host            = lower("VPN.Example.COM")
  config_port     = 4443
  default_dns     = coalesce(env("DNS"), "9.9.9.9")
  post_up         = "echo up"
}
`)

	cfg, err := LoadWithLookup(path, envMap(map[string]string{"ADMIN_HASH": hash}))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "7", cfg.Release)
	assert.Equal(t, hash, cfg.Auth.PasswordHash)
	assert.Equal(t, 30*time.Minute, cfg.Auth.MaxAge)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.Auth.TrustedProxies)
	assert.Equal(t, 1, cfg.UI.ChartType)
	assert.Equal(t, "vpn.example.com", cfg.WireGuard.Host)
	assert.Equal(t, 4443, cfg.WireGuard.ConfigPort)
	assert.Equal(t, "9.9.9.9", cfg.WireGuard.DefaultDNS)
	assert.Equal(t, "echo up", cfg.WireGuard.PostUp)
	assert.NotEmpty(t, cfg.WireGuard.PostDown)

	// Attributes the block leaves out keep their defaults.
	assert.Equal(t, 51820, cfg.WireGuard.Port)
	assert.Equal(t, "10.8.0.x", cfg.WireGuard.DefaultAddress)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, `
wireguard {
  host = "from-file"
  port = 1000
}
`)
	cfg, err := LoadWithLookup(path, envMap(map[string]string{"WG_HOST": "from-env"}))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.WireGuard.Host)
	assert.Equal(t, 1000, cfg.WireGuard.Port)
}

func TestLoad_BadFile(t *testing.T) {
	path := writeFile(t, `port = "not a number"`)
	_, err := LoadWithLookup(path, envMap(map[string]string{"WG_HOST": "h"}))
	assert.Error(t, err)
}

func TestLoad_BadInteger(t *testing.T) {
	_, err := LoadWithLookup("", envMap(map[string]string{"WG_HOST": "h", "WG_PORT": "fifty"}))
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "WG_PORT", verrs[0].Field)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing host", func(c *Config) { c.WireGuard.Host = "" }, "WG_HOST"},
		{"plaintext hash", func(c *Config) { c.Auth.PasswordHash = "secret" }, "PASSWORD_HASH"},
		{"plaintext metrics hash", func(c *Config) { c.Metrics.PasswordHash = "secret" }, "PROMETHEUS_METRICS_PASSWORD"},
		{"bad template", func(c *Config) { c.WireGuard.DefaultAddress = "10.8.0.0" }, "WG_DEFAULT_ADDRESS"},
		{"bad port", func(c *Config) { c.WireGuard.Port = 70000 }, "WG_PORT"},
		{"bad web port", func(c *Config) { c.Port = 0 }, "PORT"},
		{"bad level", func(c *Config) { c.LogLevel = "chatty" }, "LOG_LEVEL"},
		{"bad mtu", func(c *Config) { c.WireGuard.MTU = 500 }, "WG_MTU"},
		{"bad trusted proxy", func(c *Config) { c.Auth.TrustedProxies = []string{"proxy.local"} }, "TRUSTED_PROXIES"},
		{"bad interface", func(c *Config) { c.WireGuard.Interface = "this-name-is-far-too-long" }, "WG_INTERFACE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.WireGuard.Host = "vpn.example.com"
			cfg.WireGuard.ConfigPort = cfg.WireGuard.Port
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err := cfg.Validate()
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}
