package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sitegate/cmd/internal/auth/session"
)

// ChannelID names one realtime channel.
type ChannelID string

const siteChannelPrefix = "site:"

// ChannelForSite returns the channel owned by siteID.
func ChannelForSite(siteID string) ChannelID {
	return ChannelID(siteChannelPrefix + siteID)
}

// SiteID returns the site a channel belongs to, or "" for non-site channels.
func (c ChannelID) SiteID() string {
	s, ok := strings.CutPrefix(string(c), siteChannelPrefix)
	if !ok {
		return ""
	}
	return s
}

// SessionResolver resolves a session id to a Principal.
// *session.Service implements it.
type SessionResolver interface {
	Deserialize(ctx context.Context, id string) (session.Principal, error)
}

// FailureSink receives channel-authorization failures. Implementations must not block.
type FailureSink interface {
	ChannelAuthFailed(ctx context.Context, sessionID string, err error)
}

// Counter is the subset of a metrics counter used by LogFailureSink.
type Counter interface {
	Inc()
}

// LogFailureSink logs failures and optionally counts them.
type LogFailureSink struct {
	Log     *slog.Logger
	Counter Counter
}

// ChannelAuthFailed implements FailureSink.
func (s LogFailureSink) ChannelAuthFailed(_ context.Context, _ string, err error) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	// Session ids are bearer secrets and stay out of logs.
	log.Warn("realtime.authorize.fail", "err", err)
	if s.Counter != nil {
		s.Counter.Inc()
	}
}

// Authorizer maps a realtime connection's session to the channels it may join.
//
// Memberships are read on every call and never cached, so a connection sees
// the memberships current at the time it connected.
type Authorizer struct {
	sessions SessionResolver
	members  MembershipStore
	sink     FailureSink
	timeout  time.Duration
}

// AuthorizerOption configures an Authorizer.
type AuthorizerOption func(*Authorizer)

// WithFailureSink sets where failures are reported (default: slog).
func WithFailureSink(sink FailureSink) AuthorizerOption {
	return func(a *Authorizer) {
		if sink != nil {
			a.sink = sink
		}
	}
}

// WithAuthorizeTimeout bounds one authorization (default: 5s).
func WithAuthorizeTimeout(d time.Duration) AuthorizerOption {
	return func(a *Authorizer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer(sessions SessionResolver, members MembershipStore, opts ...AuthorizerOption) (*Authorizer, error) {
	if sessions == nil {
		return nil, errors.New("realtime: nil session resolver")
	}
	if members == nil {
		return nil, errors.New("realtime: nil membership store")
	}

	a := &Authorizer{
		sessions: sessions,
		members:  members,
		sink:     LogFailureSink{},
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Authorization is what one connection was granted.
// IdentityID is empty for anonymous connections.
type Authorization struct {
	IdentityID string
	Channels   []ChannelID
}

// Authenticated reports whether the connection resolved to an identity.
func (a Authorization) Authenticated() bool { return a.IdentityID != "" }

// Authorize returns the channels sessionID may join. It never fails: an empty
// or anonymous session yields no channels, and backend errors are reported to
// the FailureSink and also yield no channels.
func (a *Authorizer) Authorize(ctx context.Context, sessionID string) []ChannelID {
	return a.resolve(ctx, sessionID).Channels
}

func (a *Authorizer) resolve(ctx context.Context, sessionID string) Authorization {
	if a == nil || strings.TrimSpace(sessionID) == "" {
		return Authorization{}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	p, err := a.sessions.Deserialize(ctx, sessionID)
	if err != nil {
		a.sink.ChannelAuthFailed(ctx, sessionID, fmt.Errorf("deserialize: %w", err))
		return Authorization{}
	}
	if p.Anonymous() {
		return Authorization{}
	}

	sites, err := a.members.SitesForIdentity(ctx, p.IdentityID)
	if err != nil {
		a.sink.ChannelAuthFailed(ctx, sessionID, fmt.Errorf("memberships for %s: %w", p.IdentityID, err))
		return Authorization{IdentityID: p.IdentityID}
	}

	seen := make(map[ChannelID]struct{}, len(sites))
	out := make([]ChannelID, 0, len(sites))
	for _, site := range sites {
		site = strings.TrimSpace(site)
		if site == "" {
			continue
		}
		ch := ChannelForSite(site)
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return Authorization{IdentityID: p.IdentityID, Channels: out}
}

// AuthorizeAndJoin authorizes sessionID and joins client to each permitted
// channel through broker.
func (a *Authorizer) AuthorizeAndJoin(ctx context.Context, sessionID string, client *Client, broker Broker) Authorization {
	auth := a.resolve(ctx, sessionID)
	if client == nil || broker == nil {
		return Authorization{IdentityID: auth.IdentityID}
	}
	for _, ch := range auth.Channels {
		broker.Join(client, ch)
	}
	return auth
}

// Go runs AuthorizeAndJoin on its own goroutine. The returned channel
// receives exactly one value and is then closed.
func (a *Authorizer) Go(ctx context.Context, sessionID string, client *Client, broker Broker) <-chan Authorization {
	out := make(chan Authorization, 1)
	go func() {
		defer close(out)
		out <- a.AuthorizeAndJoin(ctx, sessionID, client, broker)
	}()
	return out
}
