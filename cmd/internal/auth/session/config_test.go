package session

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"SITEGATE_SESSION_TTL",
		"SITEGATE_SESSION_DEFAULT_PATH",
		"SITEGATE_SESSION_DEFAULT_LANDING",
		"SITEGATE_SESSION_ACCESS_DENIED_MESSAGE",
		"SITEGATE_SESSION_ID_BYTES",
	} {
		t.Setenv(k, "")
	}

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigFromEnv_InvalidDuration(t *testing.T) {
	t.Setenv("SITEGATE_SESSION_TTL", "-5m")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for negative ttl, got %v", err)
	}
}

func TestLoadConfigFromEnv_NonLocalPaths(t *testing.T) {
	t.Setenv("SITEGATE_SESSION_DEFAULT_PATH", "https://elsewhere.example/")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for absolute default path, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidIDBytes(t *testing.T) {
	t.Setenv("SITEGATE_SESSION_ID_BYTES", "16")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for small id bytes, got %v", err)
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	t.Setenv("SITEGATE_SESSION_TTL", "2h")
	t.Setenv("SITEGATE_SESSION_DEFAULT_PATH", "/signin")
	t.Setenv("SITEGATE_SESSION_DEFAULT_LANDING", "/sites")
	t.Setenv("SITEGATE_SESSION_ID_BYTES", "48")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TTL != 2*time.Hour {
		t.Fatalf("ttl mismatch: %v", cfg.TTL)
	}
	if cfg.DefaultPath != "/signin" || cfg.DefaultLanding != "/sites" {
		t.Fatalf("paths mismatch: %+v", cfg)
	}
	if cfg.IDBytes != 48 {
		t.Fatalf("id bytes mismatch: %d", cfg.IDBytes)
	}
	if cfg.AccessDeniedMessage != DefaultAccessDeniedMessage {
		t.Fatalf("message mismatch: %q", cfg.AccessDeniedMessage)
	}
}
