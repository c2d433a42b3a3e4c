package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	v1 "sitegate/contracts/realtime/v1"
)

// Broker joins clients to channels. Hub is the in-process implementation.
type Broker interface {
	Join(client *Client, id ChannelID)
}

// Hub owns the in-memory channels.
type Hub struct {
	log *slog.Logger

	mu       sync.RWMutex
	channels map[ChannelID]*Channel
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:      log,
		channels: make(map[ChannelID]*Channel),
	}
}

// Channel returns the live channel for id, or nil when nobody joined it.
func (h *Hub) Channel(id ChannelID) *Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels[id]
}

// Join adds client to the channel id, creating the channel on first use.
//
// Lookup and membership change happen under the hub lock so LeaveAll cannot
// drop the channel between them.
func (h *Hub) Join(client *Client, id ChannelID) {
	if client == nil || id == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.channels[id]
	if !ok {
		c = NewChannel(h.log, id)
		h.channels[id] = c
	}
	c.Join(client)
}

// LeaveAll removes the client from each listed channel and drops channels
// that became empty.
func (h *Hub) LeaveAll(connID string, ids []ChannelID) {
	for _, id := range ids {
		h.mu.RLock()
		c, ok := h.channels[id]
		h.mu.RUnlock()
		if !ok {
			continue
		}
		c.Leave(connID)

		h.mu.Lock()
		if cur, ok := h.channels[id]; ok && cur == c && c.Len() == 0 {
			delete(h.channels, id)
		}
		h.mu.Unlock()
	}
}

// Publish broadcasts env to the channel id and returns the number of
// connections that accepted it. Publishing to a channel nobody joined is a no-op.
func (h *Hub) Publish(id ChannelID, env v1.Envelope) int {
	h.mu.RLock()
	c, ok := h.channels[id]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	if env.Channel == "" {
		env.Channel = string(id)
	}
	return c.Broadcast(env)
}

// Len returns the number of live channels.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// PublishBuildStatus fans a build status change out to the site's channel.
func (h *Hub) PublishBuildStatus(p v1.BuildStatusPayload, now time.Time) (int, error) {
	if strings.TrimSpace(p.SiteID) == "" {
		return 0, errors.New("realtime: build status without site_id")
	}
	if strings.TrimSpace(p.State) == "" {
		return 0, errors.New("realtime: build status without state")
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return 0, err
	}
	ch := ChannelForSite(p.SiteID)
	env := newEnvelope(v1.TypeBuildStatus, payload, now)
	env.Channel = string(ch)
	return h.Publish(ch, env), nil
}
