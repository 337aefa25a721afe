package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pocketledger/internal/infra/sqlite"
	"github.com/kislikjeka/pocketledger/internal/kv"
	"github.com/kislikjeka/pocketledger/internal/kv/kvtest"
)

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Contract(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		return openStore(t, filepath.Join(t.TempDir(), "ledger.db"))
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	s, err := sqlite.Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "username", []byte(`"Ada"`)))
	require.NoError(t, s.Close())

	reopened := openStore(t, path)
	got, err := reopened.Get(ctx, "username")
	require.NoError(t, err)
	assert.Equal(t, `"Ada"`, string(got))
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	require.NoError(t, sqlite.RunMigrations(path))
	require.NoError(t, sqlite.RunMigrations(path))
}
