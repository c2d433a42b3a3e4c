package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenSealer protects provider access tokens at rest.
type TokenSealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

// PostgresStore implements Store over PostgreSQL (<schema>.identities).
//
// Notes:
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Schema/table identifiers are quoted via pgx.Identifier.
//   - Create relies on the uq_identities_handle_norm constraint; a lost race is
//     reported as ConflictError so the Reconciler can retry its lookup.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	sealer TokenSealer
	log    *slog.Logger
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "sitegate").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithTokenSealer encrypts provider access tokens before they are written.
func WithTokenSealer(sealer TokenSealer) PostgresOption {
	return func(s *PostgresStore) error {
		s.sealer = sealer
		return nil
	}
}

// WithLogger sets the logger used for row-level warnings.
func WithLogger(log *slog.Logger) PostgresOption {
	return func(s *PostgresStore) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "sitegate",
		log:    slog.Default(),
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
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const identityColumns = `id, handle, handle_norm, email, provider_user_id, provider_access_token,
	signed_in_at, created_at, updated_at`

// Get loads an identity by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (Identity, error) {
	const op = "identity.Get"

	id = strings.TrimSpace(id)
	if id == "" {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM `+s.table()+` WHERE id = $1`, id)
	return s.scan(op, row)
}

// FindByHandle loads an identity by normalized handle.
func (s *PostgresStore) FindByHandle(ctx context.Context, handleNorm string) (Identity, error) {
	const op = "identity.FindByHandle"

	row := s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM `+s.table()+` WHERE handle_norm = $1`, handleNorm)
	return s.scan(op, row)
}

// Create inserts a new identity. It never overwrites an existing handle.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Identity, error) {
	const op = "identity.Create"

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

	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table()+` (id, handle, handle_norm, email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (handle_norm) DO NOTHING
		 RETURNING `+identityColumns,
		id, in.Handle, in.HandleNorm, in.Email, now,
	)

	out, err := s.scan(op, row)
	if err != nil {
		// DO NOTHING + RETURNING yields no row when another writer owns the handle.
		if IsNotFound(err) {
			return Identity{}, ConflictError{Op: op, Field: "handle"}
		}
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Identity{}, ConflictError{Op: op, Field: field}
		}
		return Identity{}, err
	}
	return out, nil
}

// Update overwrites the per-login fields of an identity.
func (s *PostgresStore) Update(ctx context.Context, id string, in UpdateInput) (Identity, error) {
	const op = "identity.Update"

	token, err := s.seal(in.ProviderAccessToken)
	if err != nil {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "seal provider token"}
	}

	signedIn := in.SignedInAt
	if signedIn.IsZero() {
		signedIn = time.Now().UTC()
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE `+s.table()+`
		    SET provider_access_token = $2,
		        provider_user_id = $3,
		        signed_in_at = $4,
		        updated_at = $4
		  WHERE id = $1
		 RETURNING `+identityColumns,
		id, token, in.ProviderUserID, signedIn,
	)
	return s.scan(op, row)
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "identities"}.Sanitize()
}

func (s *PostgresStore) scan(op string, row pgx.Row) (Identity, error) {
	var (
		out            Identity
		email          *string
		providerUserID *string
		token          *string
		signedInAt     *time.Time
	)

	err := row.Scan(
		&out.ID,
		&out.Handle,
		&out.HandleNorm,
		&email,
		&providerUserID,
		&token,
		&signedInAt,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}
	if err != nil {
		return Identity{}, err
	}

	out.Email = email
	out.SignedInAt = signedInAt
	if providerUserID != nil {
		out.ProviderUserID = *providerUserID
	}
	// A token that no longer opens (rotated seal key, plaintext row written
	// before sealing was enabled) is dropped; the next login overwrites it.
	if token != nil {
		plain, err := s.open(*token)
		if err != nil {
			s.logger().Warn("identity.token.open.fail", "op", op, "identity_id", out.ID, "err", err)
			plain = ""
		}
		out.ProviderAccessToken = plain
	}
	return out, nil
}

func (s *PostgresStore) logger() *slog.Logger {
	if s.log == nil {
		return slog.Default()
	}
	return s.log
}

func (s *PostgresStore) seal(plain string) (string, error) {
	if s.sealer == nil || plain == "" {
		return plain, nil
	}
	return s.sealer.Seal(plain)
}

func (s *PostgresStore) open(sealed string) (string, error) {
	if s.sealer == nil || sealed == "" {
		return sealed, nil
	}
	return s.sealer.Open(sealed)
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_identities_handle_norm", strings.Contains(c, "handle"):
		return "handle", true
	case strings.Contains(c, "pkey"):
		return "id", true
	default:
		return "unique", true
	}
}
