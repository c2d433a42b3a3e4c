package session

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultAccessDeniedMessage is the flash text shown when sign-in fails for any reason.
const DefaultAccessDeniedMessage = "Apologies; you don't have access to sitegate! " +
	"Please contact the sitegate team if this is in error."

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// TTL is the lifetime of a stored record. Every write resets it.
	TTL time.Duration

	// DefaultPath is where failed sign-ins and logouts land.
	DefaultPath string

	// DefaultLanding is where successful sign-ins land when no redirect was requested.
	DefaultLanding string

	// AccessDeniedMessage is the flash message attached on sign-in failure.
	AccessDeniedMessage string

	// IDBytes is the entropy of session IDs and handshake states.
	IDBytes int
}

// DefaultConfig returns the defaults used in development.
func DefaultConfig() Config {
	return Config{
		TTL:                 24 * time.Hour,
		DefaultPath:         "/",
		DefaultLanding:      "/",
		AccessDeniedMessage: DefaultAccessDeniedMessage,
		IDBytes:             32,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional:
//   - SITEGATE_SESSION_TTL
//   - SITEGATE_SESSION_DEFAULT_PATH
//   - SITEGATE_SESSION_DEFAULT_LANDING
//   - SITEGATE_SESSION_ACCESS_DENIED_MESSAGE
//   - SITEGATE_SESSION_ID_BYTES (32..64)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("SITEGATE_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}

	if v := strings.TrimSpace(os.Getenv("SITEGATE_SESSION_DEFAULT_PATH")); v != "" {
		cfg.DefaultPath = v
	}
	if v := strings.TrimSpace(os.Getenv("SITEGATE_SESSION_DEFAULT_LANDING")); v != "" {
		cfg.DefaultLanding = v
	}
	if v := strings.TrimSpace(os.Getenv("SITEGATE_SESSION_ACCESS_DENIED_MESSAGE")); v != "" {
		cfg.AccessDeniedMessage = v
	}

	if v := os.Getenv("SITEGATE_SESSION_ID_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.IDBytes = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants. Both landing paths must be local.
func (c Config) Validate() error {
	if c.TTL <= 0 {
		return ErrConfig
	}
	if _, ok := SanitizeRedirect(c.DefaultPath); !ok {
		return ErrConfig
	}
	if _, ok := SanitizeRedirect(c.DefaultLanding); !ok {
		return ErrConfig
	}
	if c.IDBytes < 32 || c.IDBytes > 64 {
		return ErrConfig
	}
	if strings.TrimSpace(c.AccessDeniedMessage) == "" {
		return ErrConfig
	}
	return nil
}
