// Package validation guards values that cross from HTTP requests into the
// roster: route parameters used as lookup keys, client names, addresses and
// device names.
package validation

import (
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strings"
	"unicode"
)

// ErrForbiddenKey is returned for route parameters that name object-model
// internals. Callers answer it with a bare 403.
var ErrForbiddenKey = errors.New("forbidden")

// forbiddenKeys can rewrite the prototype chain of key-addressed structures.
var forbiddenKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

var (
	// Valid interface name: alphanumeric, dash, underscore, dot, max 15 chars
	interfaceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,15}$`)

	// Characters that must never reach a rendered config file or a shell hook.
	dangerousChars = []string{";", "|", "&", "$", "`", "<", ">", "\\", "\n", "\r"}
)

// MaxClientNameLength bounds client names.
const MaxClientNameLength = 255

// SanitizeKey returns v unchanged unless it is one of the forbidden keys.
func SanitizeKey(v string) (string, error) {
	if _, bad := forbiddenKeys[v]; bad {
		return "", ErrForbiddenKey
	}
	return v, nil
}

// ValidateInterfaceName validates a network interface name
func ValidateInterfaceName(name string) error {
	if name == "" {
		return fmt.Errorf("interface name cannot be empty")
	}
	if !interfaceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid interface name: %q (1-15 characters of a-z, 0-9, -_.)", name)
	}
	return nil
}

// ValidateClientName validates a display name for a client.
func ValidateClientName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("client name cannot be empty")
	}
	if len(name) > MaxClientNameLength {
		return fmt.Errorf("client name too long (max %d characters)", MaxClientNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("client name contains control characters")
		}
	}
	return nil
}

// ValidateClientAddress validates a client's tunnel address (a bare IPv4).
func ValidateClientAddress(addr string) error {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if !ip.Is4() {
		return fmt.Errorf("address %q is not IPv4", addr)
	}
	return nil
}

// ValidateAddressTemplate validates a default address template such as
// "10.8.0.x": three IPv4 octets followed by a literal x.
func ValidateAddressTemplate(tmpl string) error {
	prefix, ok := strings.CutSuffix(tmpl, ".x")
	if !ok {
		return fmt.Errorf("address template %q must end in .x", tmpl)
	}
	if _, err := netip.ParseAddr(prefix + ".0"); err != nil {
		return fmt.Errorf("invalid address template %q: %w", tmpl, err)
	}
	return nil
}

// ValidatePortNumber validates a TCP/UDP port number
func ValidatePortNumber(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be 1-65535)", port)
	}
	return nil
}

// ValidateHostname validates a host or IP that clients dial (WG_HOST).
func ValidateHostname(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return nil
	}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("host contains dangerous character: %q", char)
		}
	}
	if strings.ContainsAny(host, " \t/") {
		return fmt.Errorf("invalid host %q", host)
	}
	return nil
}
