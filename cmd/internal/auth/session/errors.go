package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a session ID does not resolve to a live record.
	// Callers treat it as anonymous, never as a fault.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRecord is returned when a record violates the state invariants.
	ErrInvalidRecord = errors.New("invalid session record")

	// ErrHandshakeState is returned when the callback state does not match the
	// state issued by StartHandshake.
	ErrHandshakeState = errors.New("handshake state mismatch")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// StoreError wraps a backend failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e StoreError) Unwrap() error { return e.Err }
