package config

import (
	"errors"
	"fmt"
	"strings"

	"grimm.is/tunnelgate/internal/auth"
	"grimm.is/tunnelgate/internal/logging"
	"grimm.is/tunnelgate/internal/validation"
)

// ErrLegacyPassword is returned when the plaintext PASSWORD variable is set.
var ErrLegacyPassword = errors.New("DO NOT USE PASSWORD ENVIRONMENT VARIABLE. USE PASSWORD_HASH INSTEAD.")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks the configuration. The legacy password check runs first
// and is reported on its own.
func (c *Config) Validate() error {
	if c.LegacyPassword != "" {
		return ErrLegacyPassword
	}

	var errs ValidationErrors
	add := func(field string, err error) {
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
		}
	}

	add("PORT", validation.ValidatePortNumber(c.Port))
	if c.Auth.PasswordHash != "" && !auth.IsHash(c.Auth.PasswordHash) {
		errs = append(errs, ValidationError{Field: "PASSWORD_HASH", Message: "not a bcrypt hash"})
	}
	if c.Auth.MaxAge < 0 {
		errs = append(errs, ValidationError{Field: "MAX_AGE", Message: "must not be negative"})
	}
	if _, err := auth.ParseTrustedProxies(c.Auth.TrustedProxies); err != nil {
		add("TRUSTED_PROXIES", err)
	}
	if c.Metrics.PasswordHash != "" && !auth.IsHash(c.Metrics.PasswordHash) {
		errs = append(errs, ValidationError{Field: "PROMETHEUS_METRICS_PASSWORD", Message: "not a bcrypt hash"})
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		add("LOG_LEVEL", err)
	}
	if c.WebRoot == "" {
		errs = append(errs, ValidationError{Field: "WEB_ROOT", Message: "must not be empty"})
	}
	if c.StateDB == "" {
		errs = append(errs, ValidationError{Field: "STATE_DB", Message: "must not be empty"})
	}

	wg := c.WireGuard
	if wg.Host == "" {
		errs = append(errs, ValidationError{Field: "WG_HOST", Message: "must be set to the public hostname or IP of this server"})
	} else {
		add("WG_HOST", validation.ValidateHostname(wg.Host))
	}
	add("WG_INTERFACE", validation.ValidateInterfaceName(wg.Interface))
	add("WG_PORT", validation.ValidatePortNumber(wg.Port))
	add("WG_CONFIG_PORT", validation.ValidatePortNumber(wg.ConfigPort))
	add("WG_DEFAULT_ADDRESS", validation.ValidateAddressTemplate(wg.DefaultAddress))
	if wg.MTU < 0 || (wg.MTU > 0 && (wg.MTU < 1280 || wg.MTU > 65535)) {
		errs = append(errs, ValidationError{Field: "WG_MTU", Message: fmt.Sprintf("out of range: %d", wg.MTU)})
	}
	if wg.PersistentKeepalive < 0 || wg.PersistentKeepalive > 65535 {
		errs = append(errs, ValidationError{Field: "WG_PERSISTENT_KEEPALIVE", Message: fmt.Sprintf("out of range: %d", wg.PersistentKeepalive)})
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
