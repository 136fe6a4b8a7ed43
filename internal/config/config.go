package config

import (
	"path/filepath"
	"strings"
	"time"

	"grimm.is/tunnelgate/internal/brand"
)

// Config is the resolved gateway configuration.
type Config struct {
	Port    int
	Host    string // WEBUI_HOST
	Release string
	Lang    string
	WebRoot string
	StateDB string

	LogLevel string
	LogJSON  bool

	// LegacyPassword holds PASSWORD if set. It is never used for
	// authentication; Validate rejects it.
	LegacyPassword string

	Auth      AuthConfig
	Metrics   MetricsConfig
	UI        UIConfig
	WireGuard WireGuardConfig
}

// AuthConfig configures the operator login.
type AuthConfig struct {
	PasswordHash string
	MaxAge       time.Duration // zero disables remember-me

	// TrustedProxies are IPs or CIDRs whose X-Forwarded-For and X-Real-IP
	// headers identify the client. Empty trusts no header.
	TrustedProxies []string
}

// MetricsConfig configures the Prometheus endpoints.
type MetricsConfig struct {
	Enabled      bool
	PasswordHash string
}

// UIConfig holds flags passed through to the web UI.
type UIConfig struct {
	TrafficStats bool
	ChartType    int
	SortClients  bool
}

// WireGuardConfig configures the tunnel interface and rendered client configs.
type WireGuardConfig struct {
	Path                string
	Interface           string
	Device              string // egress device used by the default PostUp rules
	Host                string
	Port                int
	ConfigPort          int
	MTU                 int
	PersistentKeepalive int
	DefaultAddress      string
	DefaultDNS          string
	AllowedIPs          string
	PreUp               string
	PostUp              string
	PreDown             string
	PostDown            string
	EnableOneTimeLinks  bool
	EnableExpireTime    bool
	DeviceSync          bool
}

// Default returns the built-in configuration.
func Default() *Config {
	wgPath := "/etc/wireguard"
	return &Config{
		Port:     51821,
		Host:     "0.0.0.0",
		Release:  brand.Version,
		Lang:     "en",
		WebRoot:  brand.DefaultWebRoot,
		StateDB:  filepath.Join(wgPath, brand.StateFileName),
		LogLevel: "info",
		WireGuard: WireGuardConfig{
			Path:           wgPath,
			Interface:      "wg0",
			Device:         "eth0",
			Port:           51820,
			DefaultAddress: "10.8.0.x",
			DefaultDNS:     "1.1.1.1",
			AllowedIPs:     "0.0.0.0/0, ::/0",
			DeviceSync:     true,
		},
	}
}

// Subnet returns the /24 network of the address template, e.g. 10.8.0.0/24.
func (w WireGuardConfig) Subnet() string {
	return strings.TrimSuffix(w.DefaultAddress, "x") + "0/24"
}

// DefaultPostUp returns the NAT and forwarding rules used when PostUp is unset.
func (w WireGuardConfig) DefaultPostUp() string {
	return strings.Join([]string{
		"iptables -t nat -A POSTROUTING -s " + w.Subnet() + " -o " + w.Device + " -j MASQUERADE",
		"iptables -A INPUT -p udp -m udp --dport " + itoa(w.Port) + " -j ACCEPT",
		"iptables -A FORWARD -i " + w.Interface + " -j ACCEPT",
		"iptables -A FORWARD -o " + w.Interface + " -j ACCEPT",
	}, "; ") + ";"
}

// DefaultPostDown reverses DefaultPostUp.
func (w WireGuardConfig) DefaultPostDown() string {
	return strings.Join([]string{
		"iptables -t nat -D POSTROUTING -s " + w.Subnet() + " -o " + w.Device + " -j MASQUERADE",
		"iptables -D INPUT -p udp -m udp --dport " + itoa(w.Port) + " -j ACCEPT",
		"iptables -D FORWARD -i " + w.Interface + " -j ACCEPT",
		"iptables -D FORWARD -o " + w.Interface + " -j ACCEPT",
	}, "; ") + ";"
}

// AuthEnabled reports whether the operator login is required.
func (c *Config) AuthEnabled() bool { return c.Auth.PasswordHash != "" }

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return joinHostPort(c.Host, c.Port)
}
