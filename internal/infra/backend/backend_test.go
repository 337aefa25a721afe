package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pocketledger/internal/backup"
	"github.com/kislikjeka/pocketledger/internal/infra/memory"
	"github.com/kislikjeka/pocketledger/internal/infra/sqlite"
	"github.com/kislikjeka/pocketledger/internal/ledger"
	"github.com/kislikjeka/pocketledger/pkg/config"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, err := OpenStore(ctx, &config.Config{StoreBackend: config.BackendMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)

	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err = OpenStore(ctx, &config.Config{StoreBackend: config.BackendSQLite, SQLitePath: path}, nil)
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &sqlite.Store{}, store)
	assert.NoError(t, store.Ping(ctx))

	_, err = OpenStore(ctx, &config.Config{StoreBackend: "cassandra"}, nil)
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestOpenPublisher_DisabledWithoutURL(t *testing.T) {
	p, closer, err := OpenPublisher(&config.Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, ledger.NopPublisher{}, p)
	assert.NoError(t, closer.Close())
}

func TestOpenSink(t *testing.T) {
	ctx := context.Background()

	sink, _, err := OpenSink(ctx, &config.Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, sink)

	sink, closer, err := OpenSink(ctx, &config.Config{BackupDir: "/var/backups/ledger"}, nil)
	require.NoError(t, err)
	assert.Equal(t, backup.DirSink{Dir: "/var/backups/ledger"}, sink)
	assert.NoError(t, closer.Close())
}
