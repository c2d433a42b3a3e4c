package authapi

import (
	"net/http"
	"testing"
)

func TestLoadConfigFromEnv_CookieGuardrails(t *testing.T) {
	t.Setenv("SITEGATE_AUTH_COOKIE_SAMESITE", "none")
	t.Setenv("SITEGATE_AUTH_COOKIE_SECURE", "false")
	t.Setenv("SITEGATE_AUTH_COOKIE_PATH", "relative")

	cfg := LoadConfigFromEnv()

	if cfg.CookieSameSite != http.SameSiteNoneMode {
		t.Fatalf("expected SameSite=None, got %v", cfg.CookieSameSite)
	}
	if !cfg.CookieSecure {
		t.Fatalf("SameSite=None requires Secure=true")
	}
	if cfg.CookiePath != "/" {
		t.Fatalf("expected cookie path reset to /, got %q", cfg.CookiePath)
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("SITEGATE_AUTH_COOKIE_NAME", "")
	t.Setenv("SITEGATE_AUTH_COOKIE_SAMESITE", "")
	t.Setenv("SITEGATE_AUTH_COOKIE_SECURE", "")

	cfg := LoadConfigFromEnv()
	if cfg.CookieName != "sitegate.sid" {
		t.Fatalf("cookie name=%q", cfg.CookieName)
	}
	if cfg.CookieSameSite != http.SameSiteLaxMode || cfg.CookieSecure {
		t.Fatalf("unexpected cookie policy: %+v", cfg)
	}
}

func TestParseSameSite(t *testing.T) {
	tests := []struct {
		in   string
		want http.SameSite
	}{
		{in: "strict", want: http.SameSiteStrictMode},
		{in: "lax", want: http.SameSiteLaxMode},
		{in: "none", want: http.SameSiteNoneMode},
		{in: "default", want: http.SameSiteDefaultMode},
		{in: "unknown", want: http.SameSiteLaxMode},
	}

	for _, tc := range tests {
		got := parseSameSite(tc.in)
		if got != tc.want {
			t.Fatalf("parseSameSite(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}
