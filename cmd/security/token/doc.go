// Package token provides keyed signing primitives for values handed to browsers.
//
// Session cookies carry an opaque session ID plus an HMAC-SHA256 tag so the server
// can reject forged or truncated IDs before touching the session store.
//
// Environment:
// - SITEGATE_SESSION_SECRET: signing key. Policy requires >= 32 bytes in production.
package token
