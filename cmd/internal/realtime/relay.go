package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	v1 "sitegate/contracts/realtime/v1"

	"github.com/redis/go-redis/v9"
)

// DefaultBuildEventsTopic is the Redis pub/sub channel build workers publish to.
const DefaultBuildEventsTopic = "sitegate:build_status"

// BuildEventRelay carries build status events from Redis pub/sub into the Hub,
// so every gateway replica delivers them to its own connections.
type BuildEventRelay struct {
	log   *slog.Logger
	rdb   *redis.Client
	hub   *Hub
	topic string
	now   func() time.Time

	onDelivered func(n int)
}

// RelayOption configures a BuildEventRelay.
type RelayOption func(*BuildEventRelay)

// WithDeliveredHook is called with the number of connections each event reached.
func WithDeliveredHook(fn func(n int)) RelayOption {
	return func(r *BuildEventRelay) { r.onDelivered = fn }
}

// NewBuildEventRelay constructs a relay. An empty topic uses DefaultBuildEventsTopic.
func NewBuildEventRelay(log *slog.Logger, rdb *redis.Client, hub *Hub, topic string, opts ...RelayOption) (*BuildEventRelay, error) {
	if log == nil {
		log = slog.Default()
	}
	if rdb == nil {
		return nil, errors.New("realtime: nil redis client")
	}
	if hub == nil {
		return nil, errors.New("realtime: nil hub")
	}
	if strings.TrimSpace(topic) == "" {
		topic = DefaultBuildEventsTopic
	}
	r := &BuildEventRelay{
		log:   log,
		rdb:   rdb,
		hub:   hub,
		topic: topic,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Publish sends a build status event to every relay subscribed to the topic.
func (r *BuildEventRelay) Publish(ctx context.Context, p v1.BuildStatusPayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.topic, b).Err(); err != nil {
		return fmt.Errorf("realtime: publish build status: %w", err)
	}
	return nil
}

// Run subscribes to the topic and forwards events until ctx is done.
func (r *BuildEventRelay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.topic)
	defer func() { _ = sub.Close() }()

	// Receive blocks until the subscription is confirmed, surfacing dial errors early.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribe %s: %w", r.topic, err)
	}
	r.log.Info("realtime.relay.subscribed", "topic", r.topic)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.handleMessage(msg.Payload)
		}
	}
}

func (r *BuildEventRelay) handleMessage(payload string) int {
	var p v1.BuildStatusPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		r.log.Warn("realtime.relay.decode.fail", "err", err)
		return 0
	}

	n, err := r.hub.PublishBuildStatus(p, r.now())
	if err != nil {
		r.log.Warn("realtime.relay.publish.fail", "site_id", p.SiteID, "err", err)
		return 0
	}
	if r.onDelivered != nil {
		r.onDelivered(n)
	}
	r.log.Debug("realtime.relay.delivered", "site_id", p.SiteID, "build_id", p.BuildID, "state", p.State, "delivered", n)
	return n
}
