package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"reflect"
	"testing"
	"time"

	"sitegate/cmd/security/sealer"

	"github.com/jackc/pgx/v5"
)

// fakeRow feeds fixed column values to PostgresStore.scan.
type fakeRow struct {
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d dest for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

func identityRow(token *string) fakeRow {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return fakeRow{values: []any{
		"01HZX0000000000000000000AA",
		"Alice",
		"alice",
		(*string)(nil),
		strPtr("1001"),
		token,
		&now,
		now,
		now,
	}}
}

func mustSealer(t *testing.T) *sealer.Sealer {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	s, err := sealer.New(key)
	if err != nil {
		t.Fatalf("sealer.New: %v", err)
	}
	return s
}

func TestPostgresStore_ScanUnopenableTokenIsDropped(t *testing.T) {
	t.Parallel()

	oldKey := mustSealer(t)
	sealed, err := oldKey.Seal("gho_old")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "rotated seal key", token: sealed},
		{name: "plaintext before sealing", token: "gho_plaintext"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := &PostgresStore{sealer: mustSealer(t)}

			got, err := st.scan("identity.FindByHandle", identityRow(strPtr(tc.token)))
			if err != nil {
				t.Fatalf("scan: %v", err)
			}
			if got.ID == "" || got.HandleNorm != "alice" {
				t.Fatalf("identity fields lost: %+v", got)
			}
			if got.ProviderAccessToken != "" {
				t.Fatalf("unopenable token leaked through: %q", got.ProviderAccessToken)
			}
		})
	}
}

func TestPostgresStore_ScanOpensSealedToken(t *testing.T) {
	t.Parallel()

	s := mustSealer(t)
	sealed, err := s.Seal("gho_current")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	st := &PostgresStore{sealer: s}
	got, err := st.scan("identity.Get", identityRow(&sealed))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got.ProviderAccessToken != "gho_current" {
		t.Fatalf("token=%q want=gho_current", got.ProviderAccessToken)
	}
}

// rowBackedStore serves FindByHandle through PostgresStore.scan.
type rowBackedStore struct {
	Store
	pg  *PostgresStore
	row fakeRow
}

func (s rowBackedStore) FindByHandle(context.Context, string) (Identity, error) {
	return s.pg.scan("identity.FindByHandle", s.row)
}

func (s rowBackedStore) Update(_ context.Context, id string, in UpdateInput) (Identity, error) {
	return Identity{ID: id, ProviderAccessToken: in.ProviderAccessToken, ProviderUserID: in.ProviderUserID}, nil
}

func TestReconcile_SucceedsAfterSealKeyRotation(t *testing.T) {
	t.Parallel()

	sealed, err := mustSealer(t).Seal("gho_old")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	store := rowBackedStore{
		pg:  &PostgresStore{sealer: mustSealer(t)},
		row: identityRow(&sealed),
	}

	got, err := NewReconciler(store, nil).Reconcile(context.Background(), Profile{Handle: "alice", ProviderUserID: "1001"}, "gho_new")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.ProviderAccessToken != "gho_new" {
		t.Fatalf("token=%q want=gho_new", got.ProviderAccessToken)
	}
}

var _ pgx.Row = fakeRow{}
