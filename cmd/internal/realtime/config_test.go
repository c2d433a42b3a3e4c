package realtime

import (
	"errors"
	"testing"
	"time"
)

func TestLoadGatewayConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadGatewayConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadGatewayConfigFromEnv: %v", err)
	}
	if !cfg.OriginRequired || cfg.DevInsecure {
		t.Fatalf("unexpected origin policy: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("allowed origins=%v", cfg.AllowedOrigins)
	}
	if cfg.HeartbeatInterval != heartbeatInterval || cfg.RateEvents != rateLimitEvents {
		t.Fatalf("unexpected limits: %+v", cfg)
	}
}

func TestLoadGatewayConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("SITEGATE_WS_ORIGIN_REQUIRED", "false")
	t.Setenv("SITEGATE_WS_ALLOWED_ORIGINS", " https://app.example , ,https://admin.example")
	t.Setenv("SITEGATE_WS_SEND_QUEUE", "64")
	t.Setenv("SITEGATE_WS_RATE_WINDOW", "30s")

	cfg, err := LoadGatewayConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadGatewayConfigFromEnv: %v", err)
	}
	if cfg.OriginRequired {
		t.Fatalf("expected origin not required")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://app.example" || cfg.AllowedOrigins[1] != "https://admin.example" {
		t.Fatalf("allowed origins=%q", cfg.AllowedOrigins)
	}
	if cfg.SendQueueSize != 64 || cfg.RateWindow != 30*time.Second {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestLoadGatewayConfigFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"SITEGATE_WS_DEV_INSECURE", "maybe"},
		{"SITEGATE_WS_WRITE_TIMEOUT", "-1s"},
		{"SITEGATE_WS_SEND_QUEUE", "zero"},
		{"SITEGATE_WS_RATE_EVENTS", "0"},
		{"SITEGATE_WS_HEARTBEAT_TIMEOUT", "1h"},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := LoadGatewayConfigFromEnv(); !errors.Is(err, ErrConfig) {
				t.Fatalf("%s=%q: expected ErrConfig, got %v", tc.key, tc.val, err)
			}
		})
	}
}

func TestNewWSGateway_ClampsSendQueue(t *testing.T) {
	cfg := DefaultGatewayConfig()
	cfg.SendQueueSize = 1

	authz := newTestAuthorizer(t, fakeResolver{}, NewInMemoryMembershipStore())
	gw, err := NewWSGateway(nil, cfg, NewHub(nil), authz, cookieExtractor{})
	if err != nil {
		t.Fatalf("NewWSGateway: %v", err)
	}
	if gw.cfg.SendQueueSize != wsMinSendQueueSize {
		t.Fatalf("send queue=%d want=%d", gw.cfg.SendQueueSize, wsMinSendQueueSize)
	}
}
