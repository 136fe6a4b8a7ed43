package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(name string) (string, bool)

// fileConfig mirrors the HCL schema. Pointers distinguish "absent" from
// zero values so that the file only overrides what it sets.
type fileConfig struct {
	Port     *int    `hcl:"port,optional"`
	Host     *string `hcl:"host,optional"`
	Release  *string `hcl:"release,optional"`
	Lang     *string `hcl:"lang,optional"`
	WebRoot  *string `hcl:"web_root,optional"`
	StateDB  *string `hcl:"state_db,optional"`
	LogLevel *string `hcl:"log_level,optional"`
	LogJSON  *bool   `hcl:"log_json,optional"`

	Auth      *fileAuth      `hcl:"auth,block"`
	Metrics   *fileMetrics   `hcl:"metrics,block"`
	UI        *fileUI        `hcl:"ui,block"`
	WireGuard *fileWireGuard `hcl:"wireguard,block"`
}

type fileAuth struct {
	PasswordHash *string `hcl:"password_hash,optional"`
	MaxAge       *int    `hcl:"max_age,optional"` // minutes

	TrustedProxies []string `hcl:"trusted_proxies,optional"`
}

type fileMetrics struct {
	Enabled      *bool   `hcl:"enabled,optional"`
	PasswordHash *string `hcl:"password_hash,optional"`
}

type fileUI struct {
	TrafficStats *bool `hcl:"traffic_stats,optional"`
	ChartType    *int  `hcl:"chart_type,optional"`
	SortClients  *bool `hcl:"sort_clients,optional"`
}

type fileWireGuard struct {
	Path                *string `hcl:"path,optional"`
	Interface           *string `hcl:"interface,optional"`
	Device              *string `hcl:"device,optional"`
	Host                *string `hcl:"host,optional"`
	Port                *int    `hcl:"port,optional"`
	ConfigPort          *int    `hcl:"config_port,optional"`
	MTU                 *int    `hcl:"mtu,optional"`
	PersistentKeepalive *int    `hcl:"persistent_keepalive,optional"`
	DefaultAddress      *string `hcl:"default_address,optional"`
	DefaultDNS          *string `hcl:"default_dns,optional"`
	AllowedIPs          *string `hcl:"allowed_ips,optional"`
	PreUp               *string `hcl:"pre_up,optional"`
	PostUp              *string `hcl:"post_up,optional"`
	PreDown             *string `hcl:"pre_down,optional"`
	PostDown            *string `hcl:"post_down,optional"`
	EnableOneTimeLinks  *bool   `hcl:"enable_one_time_links,optional"`
	EnableExpireTime    *bool   `hcl:"enable_expire_time,optional"`
	DeviceSync          *bool   `hcl:"device_sync,optional"`
}

// Load resolves the configuration from defaults, the HCL file at path (if
// it exists) and the process environment, then validates it.
func Load(path string) (*Config, error) {
	return LoadWithLookup(path, os.LookupEnv)
}

// LoadWithLookup is Load with an explicit environment.
func LoadWithLookup(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := decodeFile(path, data, lookup, cfg); err != nil {
				return nil, err
			}
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	applyDerivedDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeFile parses HCL source and overlays every attribute it sets.
func decodeFile(filename string, data []byte, lookup LookupFunc, cfg *Config) error {
	var fc fileConfig
	if err := hclsimple.Decode(filename, data, evalContext(lookup), &fc); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	setString(&cfg.Host, fc.Host)
	setString(&cfg.Release, fc.Release)
	setString(&cfg.Lang, fc.Lang)
	setString(&cfg.WebRoot, fc.WebRoot)
	setString(&cfg.StateDB, fc.StateDB)
	setString(&cfg.LogLevel, fc.LogLevel)
	setInt(&cfg.Port, fc.Port)
	setBool(&cfg.LogJSON, fc.LogJSON)

	if a := fc.Auth; a != nil {
		setString(&cfg.Auth.PasswordHash, a.PasswordHash)
		if a.MaxAge != nil {
			cfg.Auth.MaxAge = time.Duration(*a.MaxAge) * time.Minute
		}
		if a.TrustedProxies != nil {
			cfg.Auth.TrustedProxies = a.TrustedProxies
		}
	}
	if m := fc.Metrics; m != nil {
		setBool(&cfg.Metrics.Enabled, m.Enabled)
		setString(&cfg.Metrics.PasswordHash, m.PasswordHash)
	}
	if u := fc.UI; u != nil {
		setBool(&cfg.UI.TrafficStats, u.TrafficStats)
		setInt(&cfg.UI.ChartType, u.ChartType)
		setBool(&cfg.UI.SortClients, u.SortClients)
	}
	if w := fc.WireGuard; w != nil {
		wg := &cfg.WireGuard
		setString(&wg.Path, w.Path)
		setString(&wg.Interface, w.Interface)
		setString(&wg.Device, w.Device)
		setString(&wg.Host, w.Host)
		setInt(&wg.Port, w.Port)
		setInt(&wg.ConfigPort, w.ConfigPort)
		setInt(&wg.MTU, w.MTU)
		setInt(&wg.PersistentKeepalive, w.PersistentKeepalive)
		setString(&wg.DefaultAddress, w.DefaultAddress)
		setString(&wg.DefaultDNS, w.DefaultDNS)
		setString(&wg.AllowedIPs, w.AllowedIPs)
		setString(&wg.PreUp, w.PreUp)
		setString(&wg.PostUp, w.PostUp)
		setString(&wg.PreDown, w.PreDown)
		setString(&wg.PostDown, w.PostDown)
		setBool(&wg.EnableOneTimeLinks, w.EnableOneTimeLinks)
		setBool(&wg.EnableExpireTime, w.EnableExpireTime)
		setBool(&wg.DeviceSync, w.DeviceSync)
	}
	return nil
}

// evalContext exposes env() and a few string helpers to config files.
// env returns null for unset variables so coalesce can supply a fallback.
func evalContext(lookup LookupFunc) *hcl.EvalContext {
	env := function.New(&function.Spec{
		Params: []function.Parameter{{Name: "name", Type: cty.String}},
		Type:   function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			v, ok := lookup(args[0].AsString())
			if !ok || v == "" {
				return cty.NullVal(cty.String), nil
			}
			return cty.StringVal(v), nil
		},
	})

	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env":      env,
			"coalesce": stdlib.CoalesceFunc,
			"lower":    stdlib.LowerFunc,
			"upper":    stdlib.UpperFunc,
		},
	}
}

// applyEnv overlays environment variables. Empty variables are ignored.
func applyEnv(cfg *Config, lookup LookupFunc) error {
	var errs ValidationErrors

	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		return v, ok && v != ""
	}
	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, ValidationError{Field: name, Message: fmt.Sprintf("not an integer: %q", v)})
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			*dst = v == "true"
		}
	}

	num("PORT", &cfg.Port)
	str("WEBUI_HOST", &cfg.Host)
	str("RELEASE", &cfg.Release)
	str("LANG", &cfg.Lang)
	str("WEB_ROOT", &cfg.WebRoot)
	str("STATE_DB", &cfg.StateDB)
	str("LOG_LEVEL", &cfg.LogLevel)
	flag("LOG_JSON", &cfg.LogJSON)
	str("PASSWORD", &cfg.LegacyPassword)

	str("PASSWORD_HASH", &cfg.Auth.PasswordHash)
	var maxAge int
	num("MAX_AGE", &maxAge)
	if maxAge != 0 {
		cfg.Auth.MaxAge = time.Duration(maxAge) * time.Minute
	}
	if v, ok := get("TRUSTED_PROXIES"); ok {
		cfg.Auth.TrustedProxies = splitList(v)
	}

	flag("ENABLE_PROMETHEUS_METRICS", &cfg.Metrics.Enabled)
	str("PROMETHEUS_METRICS_PASSWORD", &cfg.Metrics.PasswordHash)

	flag("UI_TRAFFIC_STATS", &cfg.UI.TrafficStats)
	num("UI_CHART_TYPE", &cfg.UI.ChartType)
	flag("UI_ENABLE_SORT_CLIENTS", &cfg.UI.SortClients)

	wg := &cfg.WireGuard
	str("WG_PATH", &wg.Path)
	str("WG_INTERFACE", &wg.Interface)
	str("WG_DEVICE", &wg.Device)
	str("WG_HOST", &wg.Host)
	num("WG_PORT", &wg.Port)
	num("WG_CONFIG_PORT", &wg.ConfigPort)
	num("WG_MTU", &wg.MTU)
	num("WG_PERSISTENT_KEEPALIVE", &wg.PersistentKeepalive)
	str("WG_DEFAULT_ADDRESS", &wg.DefaultAddress)
	str("WG_DEFAULT_DNS", &wg.DefaultDNS)
	str("WG_ALLOWED_IPS", &wg.AllowedIPs)
	str("WG_PRE_UP", &wg.PreUp)
	str("WG_POST_UP", &wg.PostUp)
	str("WG_PRE_DOWN", &wg.PreDown)
	str("WG_POST_DOWN", &wg.PostDown)
	flag("WG_ENABLE_ONE_TIME_LINKS", &wg.EnableOneTimeLinks)
	flag("WG_ENABLE_EXPIRES_TIME", &wg.EnableExpireTime)
	if v, ok := get("WG_DEVICE_SYNC"); ok {
		wg.DeviceSync = v != "false"
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// applyDerivedDefaults fills settings whose default depends on others.
func applyDerivedDefaults(cfg *Config) {
	wg := &cfg.WireGuard
	if wg.ConfigPort == 0 {
		wg.ConfigPort = wg.Port
	}
	if wg.PostUp == "" {
		wg.PostUp = wg.DefaultPostUp()
	}
	if wg.PostDown == "" {
		wg.PostDown = wg.DefaultPostDown()
	}
}

// splitList splits a comma-separated value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func itoa(n int) string { return strconv.Itoa(n) }

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
