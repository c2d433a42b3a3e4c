// Package identity owns local identity records for users who sign in through
// the external identity provider.
//
// It contains the Identity model, the Store persistence boundary (in-memory and
// Postgres), handle normalization, and the Reconciler that turns a verified
// provider profile into exactly one local record per normalized handle.
package identity
