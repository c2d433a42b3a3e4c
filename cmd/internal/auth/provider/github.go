package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"sitegate/cmd/identity"

	"golang.org/x/oauth2"
)

const maxAPIBodyBytes = 1 << 20

// GitHub implements Provider against the GitHub OAuth + REST API.
type GitHub struct {
	cfg        Config
	oauth      *oauth2.Config
	httpClient *http.Client
	orgs       map[string]struct{}
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

type githubOrg struct {
	Login string `json:"login"`
}

// NewGitHub builds a GitHub provider. A nil client gets one bounded by cfg.HTTPTimeout.
func NewGitHub(cfg Config, client *http.Client) (*GitHub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	orgs := make(map[string]struct{}, len(cfg.AllowedOrganizations))
	for _, o := range cfg.AllowedOrganizations {
		orgs[strings.ToLower(strings.TrimSpace(o))] = struct{}{}
	}

	return &GitHub{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		httpClient: client,
		orgs:       orgs,
	}, nil
}

// AuthCodeURL returns the GitHub authorization URL carrying state.
func (g *GitHub) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for an access token and loads the profile.
func (g *GitHub) Exchange(ctx context.Context, code string) (Grant, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Grant{}, fmt.Errorf("%w: missing code", ErrExchangeFailed)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if tok.AccessToken == "" {
		return Grant{}, fmt.Errorf("%w: empty access token", ErrExchangeFailed)
	}

	var u githubUser
	if err := g.getJSON(ctx, "/user", tok.AccessToken, &u); err != nil {
		return Grant{}, fmt.Errorf("%w: profile: %v", ErrExchangeFailed, err)
	}
	if strings.TrimSpace(u.Login) == "" {
		return Grant{}, fmt.Errorf("%w: profile missing login", ErrExchangeFailed)
	}

	p := identity.Profile{
		Handle:         u.Login,
		DisplayHandle:  u.Login,
		ProviderUserID: strconv.FormatInt(u.ID, 10),
	}
	if email := strings.TrimSpace(u.Email); email != "" {
		p.Email = &email
	}

	return Grant{AccessToken: tok.AccessToken, Profile: p}, nil
}

// Verify confirms the token is accepted by the provider and, when an allowlist is
// configured, that the account belongs to an allowed organization.
// The whole round trip is bounded by cfg.VerifyTimeout.
func (g *GitHub) Verify(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return fmt.Errorf("%w: empty token", ErrExternalValidationFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.VerifyTimeout)
	defer cancel()

	var u githubUser
	if err := g.getJSON(ctx, "/user", accessToken, &u); err != nil {
		return fmt.Errorf("%w: %v", ErrExternalValidationFailed, err)
	}

	if len(g.orgs) == 0 {
		return nil
	}

	var orgs []githubOrg
	if err := g.getJSON(ctx, "/user/orgs", accessToken, &orgs); err != nil {
		return fmt.Errorf("%w: %v", ErrExternalValidationFailed, err)
	}
	for _, o := range orgs {
		if _, ok := g.orgs[strings.ToLower(o.Login)]; ok {
			return nil
		}
	}
	return fmt.Errorf("%w: not a member of an allowed organization", ErrExternalValidationFailed)
}

func (g *GitHub) getJSON(ctx context.Context, path, accessToken string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(g.cfg.APIBaseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxAPIBodyBytes))
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAPIBodyBytes)).Decode(dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
