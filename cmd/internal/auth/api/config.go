package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Config controls the browser-facing auth endpoints and cookie policy.
type Config struct {
	// TrustProxy honors X-Forwarded-For / X-Real-IP for audit records.
	TrustProxy bool

	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// RedirectParam is the query parameter carrying the post-login target on /auth/github.
	RedirectParam string
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		CookieName:     "sitegate.sid",
		CookiePath:     "/",
		CookieSecure:   false,
		CookieSameSite: http.SameSiteLaxMode,
		RedirectParam:  "redirect",
	}
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		TrustProxy:     envBool("SITEGATE_AUTH_TRUST_PROXY", false),
		CookieName:     envString("SITEGATE_AUTH_COOKIE_NAME", def.CookieName),
		CookiePath:     envString("SITEGATE_AUTH_COOKIE_PATH", def.CookiePath),
		CookieDomain:   envString("SITEGATE_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:   envBool("SITEGATE_AUTH_COOKIE_SECURE", def.CookieSecure),
		CookieSameSite: parseSameSite(envString("SITEGATE_AUTH_COOKIE_SAMESITE", "lax")),
		RedirectParam:  envString("SITEGATE_AUTH_REDIRECT_PARAM", def.RedirectParam),
	}

	// Browsers drop SameSite=None cookies that are not Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	if !strings.HasPrefix(cfg.CookiePath, "/") {
		cfg.CookiePath = def.CookiePath
	}

	return cfg
}

func parseSameSite(raw string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
