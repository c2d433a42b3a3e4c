package identity

import (
	"context"
	"log/slog"
	"time"
)

// Identity is the local account of a user who signed in through the provider.
//
// HandleNorm is immutable and unique. Handle and Email are fixed at creation
// (first write wins); ProviderAccessToken, ProviderUserID and SignedInAt are
// overwritten on every successful login.
type Identity struct {
	ID         string
	Handle     string
	HandleNorm string
	Email      *string

	ProviderUserID      string
	ProviderAccessToken string

	SignedInAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LogValue keeps the provider access token out of structured logs.
func (i Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", i.ID),
		slog.String("handle", i.Handle),
		slog.String("provider_user_id", i.ProviderUserID),
	)
}

// CreateInput describes a new identity row. Email may be nil when the provider
// does not expose one.
type CreateInput struct {
	HandleNorm string
	Handle     string
	Email      *string
	Now        time.Time
}

// UpdateInput carries the volatile fields refreshed on every login.
type UpdateInput struct {
	ProviderAccessToken string
	ProviderUserID      string
	SignedInAt          time.Time
}

// Store is the identity persistence boundary.
//
// Contract:
//   - Get / FindByHandle return a NotFoundError when no row matches.
//   - Create returns a ConflictError(Field: "handle") when HandleNorm already exists.
//     It must never overwrite an existing row.
//   - Update returns a NotFoundError when the id does not exist.
type Store interface {
	Get(ctx context.Context, id string) (Identity, error)
	FindByHandle(ctx context.Context, handleNorm string) (Identity, error)
	Create(ctx context.Context, in CreateInput) (Identity, error)
	Update(ctx context.Context, id string, in UpdateInput) (Identity, error)
}
