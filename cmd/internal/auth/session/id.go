package session

import (
	"crypto/rand"
	"encoding/base64"
)

// newOpaqueID returns a URL-safe random string carrying nBytes of entropy.
func newOpaqueID(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
