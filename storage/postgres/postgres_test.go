package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortasa/storefront/storage"
	"github.com/mortasa/storefront/storage/storagetest"
)

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("STOREFRONT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STOREFRONT_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	require.NoError(t, Migrate(dsn, "up"))
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)

	// Clean tables for test isolation.
	truncate := func() {
		pool.Exec(ctx, "TRUNCATE admin_codes, products, messages RESTART IDENTITY") //nolint:errcheck
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		pool.Close()
	})
	return NewRepository(pool)
}

func TestPostgresStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		return newTestStore(t)
	})
}

func TestPostgresMalformedIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"", "abc", "-1", "0", "1.5"} {
		_, err := s.GetAccessCode(ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound, "id %q", id)
		_, err = s.GetProduct(ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound, "id %q", id)
		assert.ErrorIs(t, s.DeleteProduct(ctx, id), storage.ErrNotFound, "id %q", id)
	}
}

func TestPostgresMigrateIdempotent(t *testing.T) {
	dsn := testDSN(t)
	require.NoError(t, Migrate(dsn, "up"))
	require.NoError(t, Migrate(dsn, "up"), "second run has nothing to do")
	assert.Error(t, Migrate(dsn, "sideways"))
}
