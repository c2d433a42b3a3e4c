package provider

import "errors"

var (
	// ErrExternalValidationFailed is returned when the provider rejected the access
	// token or could not be reached. It is never distinguished further for end users.
	ErrExternalValidationFailed = errors.New("external validation failed")

	// ErrExchangeFailed is returned when the authorization code could not be exchanged.
	ErrExchangeFailed = errors.New("provider code exchange failed")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid provider config")
)
