package app

import (
	"errors"
	"fmt"

	"sitegate/cmd/security/sealer"
	"sitegate/cmd/security/token"
)

// sessionKeyMinBytes is the minimum HMAC-SHA256 secret length for signing session cookies.
const sessionKeyMinBytes = 32

// Secrets are the key material the runtime needs.
type Secrets struct {
	SessionKey []byte
	// Sealer is nil when no seal key is configured and sealing is not required.
	Sealer *sealer.Sealer
}

// ValidateSecurityConfig enforces sitegate's security policy at startup and
// returns the validated key material. It fails fast rather than falling back
// to weaker settings.
func ValidateSecurityConfig(cfg Config) (Secrets, error) {
	key, err := token.HMACKeyFromEnv(sessionKeyMinBytes)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return Secrets{}, fmt.Errorf("security policy: %s is missing", token.HMACEnvKey)
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return Secrets{}, fmt.Errorf("security policy: %s is too short (min %d bytes)", token.HMACEnvKey, sessionKeyMinBytes)
		default:
			return Secrets{}, err
		}
	}

	s, err := sealer.FromEnv()
	switch {
	case err == nil:
		return Secrets{SessionKey: key, Sealer: s}, nil
	case errors.Is(err, sealer.ErrKeyMissing) && !cfg.RequireTokenSealing:
		return Secrets{SessionKey: key}, nil
	case errors.Is(err, sealer.ErrKeyMissing):
		return Secrets{}, fmt.Errorf("security policy: SITEGATE_REQUIRE_TOKEN_SEALING=true but %s is missing", sealer.KeyEnv)
	default:
		return Secrets{}, fmt.Errorf("security policy: %s: %w", sealer.KeyEnv, err)
	}
}
