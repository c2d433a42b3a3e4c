package provider

import (
	"context"

	"sitegate/cmd/identity"
)

// Grant is the result of a successful code exchange: the provider access token
// and the profile it belongs to.
type Grant struct {
	AccessToken string
	Profile     identity.Profile
}

// Verifier validates an access token against the provider before any local state
// is trusted. Implementations must not retry.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) error
}

// Provider is the handshake side of the identity provider.
type Provider interface {
	Verifier

	// AuthCodeURL returns the provider authorization URL carrying state.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for a Grant.
	Exchange(ctx context.Context, code string) (Grant, error)
}
