package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the session signing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "SITEGATE_SESSION_SECRET"

	sigSep = "."
)

// HMACKeyFromEnv returns the configured key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// Sign returns value with an appended base64url HMAC-SHA256 tag: "<value>.<tag>".
func Sign(value string, key []byte) string {
	return value + sigSep + tag(value, key)
}

// Verify checks a value produced by Sign and returns the original value.
// Comparison is constant-time; any malformed input yields ErrBadSignature.
func Verify(signed string, key []byte) (string, error) {
	i := strings.LastIndex(signed, sigSep)
	if i <= 0 || i == len(signed)-1 {
		return "", ErrBadSignature
	}
	value, got := signed[:i], signed[i+1:]

	want := tag(value, key)
	if !hmac.Equal([]byte(got), []byte(want)) {
		return "", ErrBadSignature
	}
	return value, nil
}

func tag(value string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}
