package provider

import (
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/github"
)

// Config controls the GitHub provider client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	AuthURL    string
	TokenURL   string
	APIBaseURL string

	// AllowedOrganizations restricts sign-in to members of these organizations.
	// Empty means any account the provider accepts.
	AllowedOrganizations []string

	// VerifyTimeout bounds the verification round trip.
	VerifyTimeout time.Duration
	// HTTPTimeout bounds every outbound request (exchange, profile, verify).
	HTTPTimeout time.Duration
}

// DefaultConfig returns GitHub.com endpoints and conservative timeouts.
func DefaultConfig() Config {
	return Config{
		Scopes:        []string{"user", "repo"},
		AuthURL:       github.Endpoint.AuthURL,
		TokenURL:      github.Endpoint.TokenURL,
		APIBaseURL:    "https://api.github.com",
		VerifyTimeout: 5 * time.Second,
		HTTPTimeout:   10 * time.Second,
	}
}

// LoadConfigFromEnv loads provider configuration from environment variables.
//
// Required:
//   - SITEGATE_GITHUB_CLIENT_ID
//   - SITEGATE_GITHUB_CLIENT_SECRET
//   - SITEGATE_GITHUB_CALLBACK_URL
//
// Optional:
//   - SITEGATE_GITHUB_SCOPES (comma separated)
//   - SITEGATE_GITHUB_AUTH_URL, SITEGATE_GITHUB_TOKEN_URL, SITEGATE_GITHUB_API_URL
//   - SITEGATE_GITHUB_ORGANIZATIONS (comma separated allowlist)
//   - SITEGATE_GITHUB_VERIFY_TIMEOUT, SITEGATE_GITHUB_HTTP_TIMEOUT
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.ClientID = strings.TrimSpace(os.Getenv("SITEGATE_GITHUB_CLIENT_ID"))
	cfg.ClientSecret = strings.TrimSpace(os.Getenv("SITEGATE_GITHUB_CLIENT_SECRET"))
	cfg.RedirectURL = strings.TrimSpace(os.Getenv("SITEGATE_GITHUB_CALLBACK_URL"))

	if v := csv(os.Getenv("SITEGATE_GITHUB_SCOPES")); len(v) > 0 {
		cfg.Scopes = v
	}
	if v := strings.TrimSpace(os.Getenv("SITEGATE_GITHUB_AUTH_URL")); v != "" {
		cfg.AuthURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SITEGATE_GITHUB_TOKEN_URL")); v != "" {
		cfg.TokenURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SITEGATE_GITHUB_API_URL")); v != "" {
		cfg.APIBaseURL = strings.TrimRight(v, "/")
	}
	cfg.AllowedOrganizations = csv(os.Getenv("SITEGATE_GITHUB_ORGANIZATIONS"))

	if v := os.Getenv("SITEGATE_GITHUB_VERIFY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.VerifyTimeout = d
	}
	if v := os.Getenv("SITEGATE_GITHUB_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.HTTPTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" || c.RedirectURL == "" {
		return ErrConfig
	}
	if c.AuthURL == "" || c.TokenURL == "" || c.APIBaseURL == "" {
		return ErrConfig
	}
	if c.VerifyTimeout <= 0 || c.HTTPTimeout <= 0 {
		return ErrConfig
	}
	return nil
}

func csv(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
