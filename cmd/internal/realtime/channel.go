package realtime

import (
	"log/slog"
	"sync"

	v1 "sitegate/contracts/realtime/v1"
)

// Channel is an in-memory membership + broadcast fanout primitive for one site.
//
// Join/Leave are safe under concurrent Broadcast. Broadcast never blocks: a
// member whose queue is full misses the envelope.
type Channel struct {
	log *slog.Logger
	ID  ChannelID

	mu      sync.RWMutex
	members map[string]*Client
}

// NewChannel constructs an empty channel.
func NewChannel(log *slog.Logger, id ChannelID) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		log:     log,
		ID:      id,
		members: make(map[string]*Client),
	}
}

// Join adds a client to membership.
func (c *Channel) Join(client *Client) {
	if c == nil || client == nil || client.ConnID == "" {
		return
	}

	c.mu.Lock()
	c.members[client.ConnID] = client
	c.mu.Unlock()

	c.log.Debug("channel.member.join", "channel", string(c.ID), "conn_id", client.ConnID)
}

// Leave removes a client from membership. The client itself keeps running;
// it may still be a member of other channels.
func (c *Channel) Leave(connID string) {
	if c == nil || connID == "" {
		return
	}

	c.mu.Lock()
	_, ok := c.members[connID]
	delete(c.members, connID)
	c.mu.Unlock()

	if ok {
		c.log.Debug("channel.member.leave", "channel", string(c.ID), "conn_id", connID)
	}
}

// Len returns the number of members.
func (c *Channel) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Has reports whether connID is a member.
func (c *Channel) Has(connID string) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[connID]
	return ok
}

// Broadcast fans env out to all members and returns how many queues accepted it.
func (c *Channel) Broadcast(env v1.Envelope) int {
	if c == nil {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	delivered := 0
	for _, m := range c.members {
		if m == nil {
			continue
		}

		select {
		case <-m.Done():
			continue
		default:
		}

		select {
		case m.Send <- env:
			delivered++
		default:
		}
	}
	return delivered
}
