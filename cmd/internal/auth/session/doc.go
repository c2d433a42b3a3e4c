// Package session implements sitegate's server-side browser sessions.
//
// A session starts anonymous on the first request and is promoted to
// authenticated only after the provider token has been verified and the
// identity reconciled. Every failure on that path leaves the session anonymous,
// attaches a single "Unauthorized" flash entry and redirects to the default path.
//
// Records are opaque to the client: the browser carries only a signed session
// ID (see cmd/internal/auth/api). Records live in a Store with a TTL; Redis in
// production, memory in tests and single-node dev.
package session
