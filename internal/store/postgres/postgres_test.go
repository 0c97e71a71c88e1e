package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"batchqc/internal/store"
	"batchqc/internal/store/postgres"
	"batchqc/internal/store/storetest"
)

// The suite needs a disposable database; it truncates every table.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("BATCHQC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BATCHQC_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := postgres.Open(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, s.Truncate(ctx))
		t.Cleanup(func() { s.Close() })
		return s
	})
}
