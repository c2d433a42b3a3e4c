package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a dev-only Store used when no database is configured.
// Uniqueness of HandleNorm is enforced under a single mutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]Identity
	byHandle map[string]string // handle_norm -> id
}

// NewInMemoryStore constructs an empty in-memory identity store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:     make(map[string]Identity),
		byHandle: make(map[string]string),
	}
}

// Get loads an identity by ID.
func (s *InMemoryStore) Get(ctx context.Context, id string) (Identity, error) {
	const op = "identity.Get"
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ident, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}
	return cloneIdentity(ident), nil
}

// FindByHandle loads an identity by normalized handle.
func (s *InMemoryStore) FindByHandle(ctx context.Context, handleNorm string) (Identity, error) {
	const op = "identity.FindByHandle"
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHandle[handleNorm]
	if !ok {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}
	return cloneIdentity(s.byID[id]), nil
}

// Create inserts a new identity unless HandleNorm is taken.
func (s *InMemoryStore) Create(ctx context.Context, in CreateInput) (Identity, error) {
	const op = "identity.Create"
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	if strings.TrimSpace(in.HandleNorm) == "" {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing handle"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewULID(now)
	if err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHandle[in.HandleNorm]; exists {
		return Identity{}, ConflictError{Op: op, Field: "handle"}
	}

	ident := Identity{
		ID:         id,
		Handle:     in.Handle,
		HandleNorm: in.HandleNorm,
		Email:      copyStringPtr(in.Email),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.byID[id] = ident
	s.byHandle[in.HandleNorm] = id

	return cloneIdentity(ident), nil
}

// Update overwrites the per-login fields of an identity.
func (s *InMemoryStore) Update(ctx context.Context, id string, in UpdateInput) (Identity, error) {
	const op = "identity.Update"
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.byID[id]
	if !ok {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}

	signedIn := in.SignedInAt
	ident.ProviderAccessToken = in.ProviderAccessToken
	ident.ProviderUserID = in.ProviderUserID
	ident.SignedInAt = &signedIn
	ident.UpdatedAt = signedIn
	s.byID[id] = ident

	return cloneIdentity(ident), nil
}

// Len returns the number of stored identities.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func cloneIdentity(in Identity) Identity {
	out := in
	out.Email = copyStringPtr(in.Email)
	if in.SignedInAt != nil {
		t := *in.SignedInAt
		out.SignedInAt = &t
	}
	return out
}

func copyStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
