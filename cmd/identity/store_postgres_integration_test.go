package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require SITEGATE_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_CreateConflictOnHandle(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := s.Create(ctx, CreateInput{HandleNorm: "navid", Handle: "Navid"}); err != nil {
		t.Fatalf("create 1: %v", err)
	}

	_, err := s.Create(ctx, CreateInput{HandleNorm: "navid", Handle: "nAvId"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresStore_UpdateRefreshesVolatileFields(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema, WithTokenSealer(reverseSealer{}))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	email := "user@example.com"
	created, err := s.Create(ctx, CreateInput{HandleNorm: "user", Handle: "User", Email: &email})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Microsecond)
	updated, err := s.Update(ctx, created.ID, UpdateInput{
		ProviderAccessToken: "gho_secret",
		ProviderUserID:      "42",
		SignedInAt:          at,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ProviderAccessToken != "gho_secret" {
		t.Fatalf("token not round-tripped through sealer: %q", updated.ProviderAccessToken)
	}
	if updated.SignedInAt == nil || !updated.SignedInAt.Equal(at) {
		t.Fatalf("signed_in_at mismatch: %v", updated.SignedInAt)
	}

	var raw string
	if err := pool.QueryRow(ctx,
		`SELECT provider_access_token FROM `+pgx.Identifier{schema, "identities"}.Sanitize()+` WHERE id = $1`,
		created.ID,
	).Scan(&raw); err != nil {
		t.Fatalf("select raw token: %v", err)
	}
	if raw == "gho_secret" {
		t.Fatalf("provider token stored in plaintext")
	}

	found, err := s.FindByHandle(ctx, "user")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != created.ID || found.Email == nil || *found.Email != email {
		t.Fatalf("unexpected find result: %+v", found)
	}
}

func TestPostgresStore_ReconcileConcurrentSameHandle(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	r := NewReconciler(mustNewIdentityStore(t, pool, schema), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := "racer"
			if i%2 == 0 {
				h = "RACER"
			}
			if _, err := r.Reconcile(ctx, Profile{Handle: h}, fmt.Sprintf("tok-%d", i)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("reconcile: %v", err)
	}

	var n int
	if err := pool.QueryRow(ctx,
		`SELECT count(*) FROM `+pgx.Identifier{schema, "identities"}.Sanitize()+` WHERE handle_norm = 'racer'`,
	).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one identity row, got %d", n)
	}
}

func TestPostgresStore_GetMissing(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	_, err := s.Get(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// reverseSealer is a reversible stand-in so tests can tell sealed from plain values.
type reverseSealer struct{}

func (reverseSealer) Seal(plain string) (string, error) { return "sealed:" + reverse(plain), nil }

func (reverseSealer) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, "sealed:") {
		return "", errors.New("not sealed")
	}
	return reverse(strings.TrimPrefix(sealed, "sealed:")), nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// ---- helpers ----

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("SITEGATE_DATABASE_URL"))
	if dsn == "" {
		t.Skip("SITEGATE_DATABASE_URL not set; skipping Postgres integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		if shouldSkipIntegration(err) {
			t.Skipf("postgres unavailable: %v", err)
		}
		t.Fatalf("pgxpool.New: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("postgres unavailable: %v", err)
		}
		t.Fatalf("ping: %v", err)
	}
	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "sitegate_test_" + strings.ToLower(mustNewULIDLike(t))
	mustExec(t, pool, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize())
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()
	mustExec(t, pool, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustApplyIdentitySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	identities := pgx.Identifier{schema, "identities"}.Sanitize()
	mustExec(t, pool, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  handle TEXT NOT NULL,
  handle_norm TEXT NOT NULL,
  email TEXT NULL,
  provider_user_id TEXT NULL,
  provider_access_token TEXT NULL,
  signed_in_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT chk_identities_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT uq_identities_handle_norm UNIQUE (handle_norm)
)`, identities))
}

func mustNewIdentityStore(t *testing.T, pool *pgxpool.Pool, schema string, opts ...PostgresOption) *PostgresStore {
	t.Helper()

	s, err := NewPostgresStore(pool, append([]PostgresOption{WithSchema(schema)}, opts...)...)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	return s
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host")
}

func mustExec(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, sql, args...); err != nil {
		t.Fatalf("exec failed: %v", err)
	}
}

func mustNewULIDLike(t *testing.T) string {
	t.Helper()

	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	return id
}
