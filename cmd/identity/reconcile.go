package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

const defaultReconcileAttempts = 3

// Profile is the verified provider profile handed to the Reconciler.
type Profile struct {
	Handle         string
	DisplayHandle  string
	Email          *string
	ProviderUserID string
}

// Reconciler turns a verified provider profile into a local Identity.
//
// Concurrency: there is no lock. Two logins for the same handle may race on
// Create; the loser observes a ConflictError and retries the lookup, so the
// store's uniqueness constraint is the only arbiter.
type Reconciler struct {
	store       Store
	log         *slog.Logger
	now         func() time.Time
	maxAttempts int
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithClock overrides the time source used for SignedInAt.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMaxAttempts bounds the find-or-create retry loop.
func WithMaxAttempts(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// NewReconciler constructs a Reconciler over store.
func NewReconciler(store Store, log *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	r := &Reconciler{
		store:       store,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultReconcileAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Reconcile finds or creates the identity for p and records the latest login.
//
// Email and Handle are taken from p only when the record is created.
// ProviderAccessToken, ProviderUserID and SignedInAt are always overwritten.
// Any failure is returned as a ReconcileError (errors.Is ErrReconcileFailed).
func (r *Reconciler) Reconcile(ctx context.Context, p Profile, accessToken string) (Identity, error) {
	norm := NormalizeHandle(p.Handle)
	if norm == "" {
		return Identity{}, ReconcileError{Handle: p.Handle, Err: ErrInvalidInput}
	}

	display := strings.TrimSpace(p.DisplayHandle)
	if display == "" {
		display = strings.TrimSpace(p.Handle)
	}

	ident, err := r.findOrCreate(ctx, norm, CreateInput{
		HandleNorm: norm,
		Handle:     display,
		Email:      trimPtr(p.Email),
		Now:        r.now(),
	})
	if err != nil {
		return Identity{}, ReconcileError{Handle: p.Handle, Err: err}
	}

	updated, err := r.store.Update(ctx, ident.ID, UpdateInput{
		ProviderAccessToken: accessToken,
		ProviderUserID:      strings.TrimSpace(p.ProviderUserID),
		SignedInAt:          r.now(),
	})
	if err != nil {
		return Identity{}, ReconcileError{Handle: p.Handle, Err: err}
	}

	return updated, nil
}

func (r *Reconciler) findOrCreate(ctx context.Context, norm string, in CreateInput) (Identity, error) {
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		ident, err := r.store.FindByHandle(ctx, norm)
		if err == nil {
			return ident, nil
		}
		if !IsNotFound(err) {
			return Identity{}, err
		}

		ident, err = r.store.Create(ctx, in)
		if err == nil {
			r.log.Info("identity.created", "identity", ident)
			return ident, nil
		}
		if !IsConflict(err) {
			return Identity{}, err
		}

		// Lost the create race to a concurrent login; the winner's row is visible now.
		r.log.Debug("identity.create.conflict", "handle_norm", norm, "attempt", attempt)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("no identity after retries")
	}
	return Identity{}, lastErr
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}
