package sealer

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeyEnv is the env var name for the hex-encoded sealing key.
	// #nosec G101 -- not a credential; it's an environment variable name.
	KeyEnv = "SITEGATE_TOKEN_SEAL_KEY"

	versionPrefix = "v1."
)

// Public, stable errors for callers.
var (
	ErrKeyMissing = errors.New("seal key missing")
	ErrKeyInvalid = errors.New("seal key must be 32 bytes hex")
	ErrMalformed  = errors.New("sealed value malformed")
	ErrOpen       = errors.New("sealed value could not be opened")
)

// Sealer seals and opens short secrets with an AEAD.
type Sealer struct {
	aead cipher.AEAD
}

// New builds a Sealer from a raw 32-byte key.
func New(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrKeyInvalid
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// FromHex builds a Sealer from a hex-encoded key.
func FromHex(keyHex string) (*Sealer, error) {
	keyHex = strings.TrimSpace(keyHex)
	if keyHex == "" {
		return nil, ErrKeyMissing
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, ErrKeyInvalid
	}
	return New(key)
}

// FromEnv builds a Sealer from SITEGATE_TOKEN_SEAL_KEY.
// It returns ErrKeyMissing when the variable is unset so callers can decide on a dev fallback.
func FromEnv() (*Sealer, error) {
	return FromHex(os.Getenv(KeyEnv))
}

// Seal encrypts plain and returns the encoded envelope.
func (s *Sealer) Seal(plain string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := s.aead.Seal(nonce, nonce, []byte(plain), []byte(versionPrefix))
	return versionPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, versionPrefix) {
		return "", ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, versionPrefix))
	if err != nil {
		return "", ErrMalformed
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return "", ErrMalformed
	}
	plain, err := s.aead.Open(nil, raw[:ns], raw[ns:], []byte(versionPrefix))
	if err != nil {
		return "", ErrOpen
	}
	return string(plain), nil
}
