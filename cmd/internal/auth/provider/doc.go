// Package provider talks to the external OAuth identity provider.
//
// It covers the authorization redirect, the code-for-token exchange, the
// profile fetch, and access-token verification. Verification failures of any
// kind (rejection, network error, timeout, organization mismatch) collapse into
// ErrExternalValidationFailed so callers cannot tell them apart.
package provider
