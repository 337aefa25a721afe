//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pocketledger/internal/infra/postgres"
	"github.com/kislikjeka/pocketledger/internal/kv"
	"github.com/kislikjeka/pocketledger/internal/kv/kvtest"
	"github.com/kislikjeka/pocketledger/testutil/testdb"
)

var testDB *testdb.TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testdb.NewTestDB(ctx)
	if err != nil {
		panic("failed to create test database: " + err.Error())
	}

	code := m.Run()

	testDB.Close(ctx)
	if code != 0 {
		panic("tests failed")
	}
}

func setupTest(t *testing.T) (*postgres.Store, context.Context) {
	ctx := context.Background()
	require.NoError(t, testDB.Reset(ctx))
	return postgres.NewStore(testDB.Pool, nil), ctx
}

func TestStore_Contract(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		s, _ := setupTest(t)
		return s
	})
}

func TestRunMigrations_OnInitializedSchema(t *testing.T) {
	require.NoError(t, postgres.RunMigrations(testDB.Pool))
	require.NoError(t, postgres.RunMigrations(testDB.Pool))
}

func TestStore_ContextTransaction(t *testing.T) {
	s, ctx := setupTest(t)

	txCtx, err := s.BeginTx(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Set(txCtx, "accounts", []byte(`[]`)))

	_, err = s.BeginTx(txCtx)
	assert.Error(t, err, "nested transactions are rejected")

	require.NoError(t, s.RollbackTx(txCtx))

	_, err = s.Get(ctx, "accounts")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestStore_UpdateRollbackLeavesNoRows(t *testing.T) {
	s, ctx := setupTest(t)

	err := s.Update(ctx, func(tx kv.Tx) error {
		require.NoError(t, tx.Set(ctx, "transactions", []byte(`[{"id":"t1"}]`)))
		return errors.New("abort")
	})
	require.Error(t, err)

	var n int
	require.NoError(t, testDB.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM kv_entries`).Scan(&n))
	assert.Zero(t, n)
}
