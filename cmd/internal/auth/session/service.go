package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sitegate/cmd/identity"
	"sitegate/cmd/internal/auth/provider"
)

// Sign-in outcomes reported to the OutcomeRecorder.
const (
	OutcomeSuccess         = "success"
	OutcomeProviderFailed  = "provider_failed"
	OutcomeStateMismatch   = "state_mismatch"
	OutcomeVerifyFailed    = "verify_failed"
	OutcomeReconcileFailed = "reconcile_failed"
	OutcomePersistFailed   = "persist_failed"
)

// FlashTitleUnauthorized is the title of the flash entry attached on sign-in failure.
const FlashTitleUnauthorized = "Unauthorized"

// Reconciler maps a verified profile to a local identity.
type Reconciler interface {
	Reconcile(ctx context.Context, p identity.Profile, accessToken string) (identity.Identity, error)
}

// IdentityGetter resolves an identity by ID.
type IdentityGetter interface {
	Get(ctx context.Context, id string) (identity.Identity, error)
}

// OutcomeRecorder observes sign-in outcomes (metrics).
type OutcomeRecorder interface {
	RecordAuthOutcome(outcome string)
}

// Result is what the provider handshake produced: a failure or a Grant.
type Result struct {
	Err   error
	Grant provider.Grant
}

// Failed builds a failed Result.
func Failed(err error) Result {
	if err == nil {
		err = provider.ErrExternalValidationFailed
	}
	return Result{Err: err}
}

// Succeeded builds a successful Result.
func Succeeded(g provider.Grant) Result { return Result{Grant: g} }

// Outcome is the HTTP-facing result of finishing a handshake.
//
// Record is the session as persisted. On success its ID differs from the one
// that entered the handshake; the caller must reissue the cookie.
type Outcome struct {
	Authenticated bool
	Redirect      string
	Record        Record
}

// CallbackParams are the query parameters the provider sends back.
type CallbackParams struct {
	Code  string
	State string
	// Error is set when the provider itself reported a failure (e.g. access_denied).
	Error string
}

// Service is the session lifecycle manager: it owns the anonymous/authenticated
// state machine, its persistence, and the redirect contract after sign-in.
type Service struct {
	cfg        Config
	store      Store
	provider   provider.Provider
	reconciler Reconciler
	identities IdentityGetter
	log        *slog.Logger
	now        func() time.Time
	recorder   OutcomeRecorder
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOutcomeRecorder reports every sign-in outcome to r.
func WithOutcomeRecorder(r OutcomeRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewService constructs a Service. The provider both starts handshakes and
// verifies tokens; identities resolves authenticated sessions on Deserialize.
func NewService(
	cfg Config,
	store Store,
	prov provider.Provider,
	reconciler Reconciler,
	identities IdentityGetter,
	log *slog.Logger,
	opts ...Option,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		cfg:        cfg,
		store:      store,
		provider:   prov,
		reconciler: reconciler,
		identities: identities,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// Load returns the live record for id.
func (s *Service) Load(ctx context.Context, id string) (Record, bool) {
	if strings.TrimSpace(id) == "" {
		return Record{}, false
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			s.log.Warn("session.load.fail", "err", err)
		}
		return Record{}, false
	}
	return rec, true
}

// Begin returns the record for id, or creates and persists a fresh anonymous
// record when id is empty or does not resolve.
func (s *Service) Begin(ctx context.Context, id string) (Record, error) {
	if rec, ok := s.Load(ctx, id); ok {
		return rec, nil
	}

	newID, err := newOpaqueID(s.cfg.IDBytes)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		ID:        newID,
		State:     StateAnonymous,
		CreatedAt: s.now(),
	}
	if err := s.store.Set(ctx, rec, s.cfg.TTL); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Deserialize resolves a session ID to a Principal.
//
// Unknown, expired and destroyed sessions resolve to an anonymous Principal
// with a nil error. So do authenticated sessions whose identity is gone.
// Only backend failures are returned as errors.
func (s *Service) Deserialize(ctx context.Context, id string) (Principal, error) {
	if strings.TrimSpace(id) == "" {
		return Principal{}, nil
	}

	rec, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return Principal{}, nil
	}
	if err != nil {
		return Principal{}, err
	}
	if !rec.Authenticated() {
		return Principal{SessionID: rec.ID}, nil
	}

	ident, err := s.identities.Get(ctx, rec.IdentityID)
	if identity.IsNotFound(err) {
		return Principal{SessionID: rec.ID}, nil
	}
	if err != nil {
		return Principal{SessionID: rec.ID}, err
	}

	return Principal{
		SessionID:       rec.ID,
		IdentityID:      ident.ID,
		Handle:          ident.Handle,
		AuthenticatedAt: rec.AuthenticatedAt,
	}, nil
}

// StartHandshake records where to land after sign-in and a fresh handshake
// state, and returns the provider authorization URL.
//
// A desiredRedirect that is not a local path is dropped, not rejected.
func (s *Service) StartHandshake(ctx context.Context, rec Record, desiredRedirect string) (Record, string, error) {
	state, err := newOpaqueID(s.cfg.IDBytes)
	if err != nil {
		return rec, "", err
	}

	rec = rec.clone()
	rec.HandshakeState = state
	rec.PendingRedirectPath = ""
	if p, ok := SanitizeRedirect(desiredRedirect); ok {
		rec.PendingRedirectPath = p
	}

	if err := s.store.Set(ctx, rec, s.cfg.TTL); err != nil {
		return rec, "", err
	}
	return rec, s.provider.AuthCodeURL(state), nil
}

// HandleCallback checks the returned state, exchanges the code and completes
// the handshake. A state mismatch or exchange failure counts as a provider failure.
func (s *Service) HandleCallback(ctx context.Context, rec Record, p CallbackParams) (Outcome, error) {
	if p.Error != "" {
		cause := fmt.Errorf("%w: provider error %q", provider.ErrExternalValidationFailed, p.Error)
		return s.complete(ctx, rec, Failed(cause), OutcomeProviderFailed)
	}

	want := rec.HandshakeState
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(p.State)) != 1 {
		return s.complete(ctx, rec, Failed(ErrHandshakeState), OutcomeStateMismatch)
	}

	grant, err := s.provider.Exchange(ctx, p.Code)
	if err != nil {
		return s.complete(ctx, rec, Failed(err), OutcomeProviderFailed)
	}
	return s.CompleteHandshake(ctx, rec, Succeeded(grant))
}

// CompleteHandshake runs Verify then Reconcile and settles the session.
//
// Success: the record is re-keyed under a new ID, promoted to authenticated and
// redirected to the pending path (or DefaultLanding). The old ID is destroyed.
//
// Failure of any kind: the record is anonymous, its error flash holds exactly
// one "Unauthorized" entry, and the redirect is DefaultPath.
//
// The returned error is non-nil only when the record could not be persisted;
// the Outcome is usable either way.
func (s *Service) CompleteHandshake(ctx context.Context, rec Record, res Result) (Outcome, error) {
	return s.complete(ctx, rec, res, OutcomeProviderFailed)
}

func (s *Service) complete(ctx context.Context, rec Record, res Result, failOutcome string) (Outcome, error) {
	rec = rec.clone()
	pending := rec.PendingRedirectPath
	rec.PendingRedirectPath = ""
	rec.HandshakeState = ""

	if res.Err != nil {
		return s.fail(ctx, rec, failOutcome, res.Err)
	}

	token := res.Grant.AccessToken
	if err := s.provider.Verify(ctx, token); err != nil {
		return s.fail(ctx, rec, OutcomeVerifyFailed, err)
	}

	ident, err := s.reconciler.Reconcile(ctx, res.Grant.Profile, token)
	if err != nil {
		return s.fail(ctx, rec, OutcomeReconcileFailed, err)
	}

	newID, err := newOpaqueID(s.cfg.IDBytes)
	if err != nil {
		return s.fail(ctx, rec, OutcomePersistFailed, err)
	}

	now := s.now()
	promoted := rec.clone()
	promoted.ID = newID
	promoted.State = StateAuthenticated
	promoted.IdentityID = ident.ID
	promoted.AuthenticatedAt = &now

	if err := s.store.Set(ctx, promoted, s.cfg.TTL); err != nil {
		return s.fail(ctx, rec, OutcomePersistFailed, err)
	}
	if err := s.store.Destroy(ctx, rec.ID); err != nil {
		s.log.Warn("session.rotate.destroy_old.fail", "err", err)
	}

	s.record(OutcomeSuccess)
	s.log.Info("auth.signin.ok", "identity", ident)

	redirect := pending
	if redirect == "" {
		redirect = s.cfg.DefaultLanding
	}
	return Outcome{Authenticated: true, Redirect: redirect, Record: promoted}, nil
}

func (s *Service) fail(ctx context.Context, rec Record, outcome string, cause error) (Outcome, error) {
	rec = rec.clone()
	rec.State = StateAnonymous
	rec.IdentityID = ""
	rec.AuthenticatedAt = nil
	// Repeated failures still leave a single error flash.
	delete(rec.Flash, FlashError)
	rec.addFlash(FlashError, Flash{
		Title:   FlashTitleUnauthorized,
		Message: s.cfg.AccessDeniedMessage,
	})

	s.record(outcome)
	s.log.Warn("auth.signin.fail", "outcome", outcome, "err", cause)

	out := Outcome{Redirect: s.cfg.DefaultPath, Record: rec}
	if err := s.store.Set(ctx, rec, s.cfg.TTL); err != nil {
		return out, err
	}
	return out, nil
}

// Logout destroys the record. Later lookups of its ID resolve to anonymous.
func (s *Service) Logout(ctx context.Context, rec Record) (Record, error) {
	if err := s.store.Destroy(ctx, rec.ID); err != nil {
		return rec, err
	}
	if rec.IdentityID != "" {
		s.log.Info("auth.logout", "identity_id", rec.IdentityID)
	}
	return Record{ID: rec.ID, State: StateDestroyed}, nil
}

// ConsumeFlash returns the pending flash entries and clears them.
func (s *Service) ConsumeFlash(ctx context.Context, rec Record) (map[string][]Flash, Record, error) {
	if len(rec.Flash) == 0 {
		return nil, rec, nil
	}

	out := rec.clone().Flash
	rec = rec.clone()
	rec.Flash = nil
	if err := s.store.Set(ctx, rec, s.cfg.TTL); err != nil {
		return nil, rec, err
	}
	return out, rec, nil
}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordAuthOutcome(outcome)
	}
}
