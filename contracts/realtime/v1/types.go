// Package v1 defines the sitegate realtime protocol v1 contract.
//
// This package is dependency-light and shared between the server and clients
// so the wire protocol stays authoritative in one place.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the WebSocket subprotocol clients must request.
const Subprotocol = "sitegate.realtime.v1"

// Type constants (wire-stable).
const (
	// TypeHello starts the connection handshake (client -> server).
	TypeHello = "hello"
	// TypeHelloAck answers hello with the channels the connection was joined to (server -> client).
	TypeHelloAck = "hello_ack"

	// TypeChannelJoined announces one joined channel (server -> client).
	TypeChannelJoined = "channel_joined"

	// TypeBuildStatus carries a site build status change (server -> channel members).
	TypeBuildStatus = "build_status"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeChannelJoined,
		TypeBuildStatus,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloPayload is sent by the client after connecting.
type HelloPayload struct{}

// HelloAckPayload tells the client who it is and what it was joined to.
// Anonymous connections get Authenticated=false and no channels.
type HelloAckPayload struct {
	ConnectionID  string   `json:"connection_id"`
	Authenticated bool     `json:"authenticated"`
	Channels      []string `json:"channels"`
}

// ChannelJoinedPayload announces a joined channel.
type ChannelJoinedPayload struct {
	Channel string `json:"channel"`
	SiteID  string `json:"site_id"`
}

// BuildStatusPayload is broadcast to a site channel when a build changes state.
type BuildStatusPayload struct {
	SiteID  string `json:"site_id"`
	BuildID string `json:"build_id"`
	State   string `json:"state"`
	Branch  string `json:"branch,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
