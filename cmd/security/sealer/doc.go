// Package sealer encrypts provider access tokens before they are persisted.
//
// Sealed values use XChaCha20-Poly1305 with a random 24-byte nonce and are encoded
// as "v1.<base64url(nonce || ciphertext)>". The version prefix allows key or
// algorithm rotation without ambiguity.
//
// Environment:
// - SITEGATE_TOKEN_SEAL_KEY: hex-encoded 32-byte key.
package sealer
