package realtime

import (
	"time"

	"sitegate/cmd/identity/ids"
)

// NewConnID returns a ULID identifying one WebSocket connection in logs and hello_ack.
func NewConnID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewEnvelopeID returns a ULID used as envelope id.
func NewEnvelopeID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
