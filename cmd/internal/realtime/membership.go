package realtime

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MembershipStore answers which sites an identity belongs to.
type MembershipStore interface {
	// SitesForIdentity returns the site ids identityID is a member of.
	// Unknown identities have no memberships; that is not an error.
	SitesForIdentity(ctx context.Context, identityID string) ([]string, error)
}

// InMemoryMembershipStore is a MembershipStore for tests and single-node dev.
type InMemoryMembershipStore struct {
	mu    sync.RWMutex
	sites map[string]map[string]struct{}
}

// NewInMemoryMembershipStore constructs an empty in-memory membership store.
func NewInMemoryMembershipStore() *InMemoryMembershipStore {
	return &InMemoryMembershipStore{sites: make(map[string]map[string]struct{})}
}

// Add records identityID as a member of siteID.
func (s *InMemoryMembershipStore) Add(identityID, siteID string) {
	identityID = strings.TrimSpace(identityID)
	siteID = strings.TrimSpace(siteID)
	if identityID == "" || siteID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sites[identityID]
	if !ok {
		set = make(map[string]struct{})
		s.sites[identityID] = set
	}
	set[siteID] = struct{}{}
}

// Remove drops a membership if present.
func (s *InMemoryMembershipStore) Remove(identityID, siteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sites[identityID]
	if !ok {
		return
	}
	delete(set, siteID)
	if len(set) == 0 {
		delete(s.sites, identityID)
	}
}

// SitesForIdentity returns site ids in ascending order.
func (s *InMemoryMembershipStore) SitesForIdentity(ctx context.Context, identityID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.sites[strings.TrimSpace(identityID)]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// PostgresMembershipStore reads memberships from <schema>.site_members.
type PostgresMembershipStore struct {
	pool   *pgxpool.Pool
	schema string
}

// MembershipOption configures PostgresMembershipStore behavior.
type MembershipOption func(*PostgresMembershipStore) error

// WithMembershipSchema sets the DB schema used by the membership store (default: "sitegate").
func WithMembershipSchema(schema string) MembershipOption {
	return func(s *PostgresMembershipStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("realtime: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("realtime: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresMembershipStore constructs a membership store backed by PostgreSQL.
func NewPostgresMembershipStore(pool *pgxpool.Pool, opts ...MembershipOption) (*PostgresMembershipStore, error) {
	st := &PostgresMembershipStore{
		pool:   pool,
		schema: "sitegate",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	return st, nil
}

// SitesForIdentity lists site ids for identityID, ordered by site id.
func (s *PostgresMembershipStore) SitesForIdentity(ctx context.Context, identityID string) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("realtime: nil membership store")
	}
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	members := pgIdent(s.schema, "site_members")

	rows, err := s.pool.Query(ctx,
		`SELECT site_id FROM `+members+` WHERE identity_id = $1 ORDER BY site_id`,
		identityID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
