package realtime

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrConfig is returned for invalid gateway configuration.
var ErrConfig = errors.New("realtime: invalid config")

// GatewayConfig tunes the WebSocket gateway.
type GatewayConfig struct {
	// DevInsecure disables websocket.Accept's own origin check. Dev only.
	DevInsecure bool

	// OriginRequired rejects upgrades without an Origin header.
	OriginRequired bool
	// AllowedOrigins lists accepted origins. "*" allows any; host matches ignore scheme and port.
	AllowedOrigins []string

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultGatewayConfig only admits localhost origins.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:    true,
		AllowedOrigins:    []string{"http://localhost", "http://127.0.0.1"},
		WriteTimeout:      wsDefaultWriteTimeout,
		ReadIdleTimeout:   wsDefaultReadIdle,
		SendQueueSize:     wsDefaultSendQueueSize,
		HeartbeatInterval: heartbeatInterval,
		HeartbeatTimeout:  heartbeatTimeout,
		RateEvents:        rateLimitEvents,
		RateWindow:        rateLimitWindow,
	}
}

// LoadGatewayConfigFromEnv reads SITEGATE_WS_* overrides on top of the defaults.
//
// Optional:
//   - SITEGATE_WS_DEV_INSECURE
//   - SITEGATE_WS_ORIGIN_REQUIRED
//   - SITEGATE_WS_ALLOWED_ORIGINS (comma-separated)
//   - SITEGATE_WS_WRITE_TIMEOUT, SITEGATE_WS_READ_IDLE_TIMEOUT
//   - SITEGATE_WS_SEND_QUEUE
//   - SITEGATE_WS_HEARTBEAT_INTERVAL, SITEGATE_WS_HEARTBEAT_TIMEOUT
//   - SITEGATE_WS_RATE_EVENTS, SITEGATE_WS_RATE_WINDOW
//
// Returns an error wrapping ErrConfig for unparsable or non-positive values.
func LoadGatewayConfigFromEnv() (GatewayConfig, error) {
	cfg := DefaultGatewayConfig()
	var err error

	setBool := func(key string, dst *bool) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" || err != nil {
			return
		}
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			err = fmt.Errorf("%w: %s=%q", ErrConfig, key, v)
			return
		}
		*dst = b
	}
	setDuration := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" || err != nil {
			return
		}
		d, perr := time.ParseDuration(v)
		if perr != nil || d <= 0 {
			err = fmt.Errorf("%w: %s=%q", ErrConfig, key, v)
			return
		}
		*dst = d
	}
	setInt := func(key string, dst *int) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" || err != nil {
			return
		}
		n, perr := strconv.Atoi(v)
		if perr != nil || n <= 0 {
			err = fmt.Errorf("%w: %s=%q", ErrConfig, key, v)
			return
		}
		*dst = n
	}

	setBool("SITEGATE_WS_DEV_INSECURE", &cfg.DevInsecure)
	setBool("SITEGATE_WS_ORIGIN_REQUIRED", &cfg.OriginRequired)
	if v := strings.TrimSpace(os.Getenv("SITEGATE_WS_ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	setDuration("SITEGATE_WS_WRITE_TIMEOUT", &cfg.WriteTimeout)
	setDuration("SITEGATE_WS_READ_IDLE_TIMEOUT", &cfg.ReadIdleTimeout)
	setInt("SITEGATE_WS_SEND_QUEUE", &cfg.SendQueueSize)
	setDuration("SITEGATE_WS_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval)
	setDuration("SITEGATE_WS_HEARTBEAT_TIMEOUT", &cfg.HeartbeatTimeout)
	setInt("SITEGATE_WS_RATE_EVENTS", &cfg.RateEvents)
	setDuration("SITEGATE_WS_RATE_WINDOW", &cfg.RateWindow)

	if err != nil {
		return GatewayConfig{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the timing and sizing fields are usable.
func (c GatewayConfig) Validate() error {
	switch {
	case c.WriteTimeout <= 0, c.ReadIdleTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrConfig)
	case c.HeartbeatInterval <= 0, c.HeartbeatTimeout <= 0:
		return fmt.Errorf("%w: heartbeat must be positive", ErrConfig)
	case c.HeartbeatTimeout >= c.HeartbeatInterval:
		return fmt.Errorf("%w: heartbeat timeout must be shorter than the interval", ErrConfig)
	case c.RateEvents <= 0, c.RateWindow <= 0:
		return fmt.Errorf("%w: rate limit must be positive", ErrConfig)
	case c.SendQueueSize <= 0:
		return fmt.Errorf("%w: send queue must be positive", ErrConfig)
	}
	return nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
