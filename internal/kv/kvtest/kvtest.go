// Package kvtest holds the behaviour every kv.Store backend must satisfy.
package kvtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pocketledger/internal/kv"
)

// Run exercises a store produced by newStore. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) kv.Store) {
	t.Helper()

	t.Run("missing key", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "absent")
		assert.ErrorIs(t, err, kv.ErrKeyNotFound)
	})

	t.Run("set get overwrite", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, "accounts", []byte(`[1]`)))
		require.NoError(t, s.Set(ctx, "accounts", []byte(`[1,2]`)))

		got, err := s.Get(ctx, "accounts")
		require.NoError(t, err)
		assert.JSONEq(t, `[1,2]`, string(got))
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, "a", []byte(`"x"`)))
		require.NoError(t, s.Set(ctx, "b", []byte(`"y"`)))
		require.NoError(t, s.Delete(ctx, "a", "b", "never-set"))

		_, err := s.Get(ctx, "a")
		assert.ErrorIs(t, err, kv.ErrKeyNotFound)
		_, err = s.Get(ctx, "b")
		assert.ErrorIs(t, err, kv.ErrKeyNotFound)
	})

	t.Run("update commits all writes", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "stale", []byte(`true`)))

		err := s.Update(ctx, func(tx kv.Tx) error {
			if err := tx.Set(ctx, "accounts", []byte(`["a"]`)); err != nil {
				return err
			}
			if err := tx.Set(ctx, "transactions", []byte(`["t"]`)); err != nil {
				return err
			}
			return tx.Delete(ctx, "stale")
		})
		require.NoError(t, err)

		accounts, err := s.Get(ctx, "accounts")
		require.NoError(t, err)
		assert.JSONEq(t, `["a"]`, string(accounts))

		txs, err := s.Get(ctx, "transactions")
		require.NoError(t, err)
		assert.JSONEq(t, `["t"]`, string(txs))

		_, err = s.Get(ctx, "stale")
		assert.ErrorIs(t, err, kv.ErrKeyNotFound)
	})

	t.Run("update reads its own writes", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		err := s.Update(ctx, func(tx kv.Tx) error {
			require.NoError(t, tx.Set(ctx, "k", []byte(`1`)))
			got, err := tx.Get(ctx, "k")
			require.NoError(t, err)
			assert.JSONEq(t, `1`, string(got))

			require.NoError(t, tx.Delete(ctx, "k"))
			_, err = tx.Get(ctx, "k")
			assert.ErrorIs(t, err, kv.ErrKeyNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("update rolls back on error", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "accounts", []byte(`["original"]`)))

		boom := errors.New("boom")
		err := s.Update(ctx, func(tx kv.Tx) error {
			require.NoError(t, tx.Set(ctx, "accounts", []byte(`["changed"]`)))
			require.NoError(t, tx.Set(ctx, "transactions", []byte(`["new"]`)))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		accounts, err := s.Get(ctx, "accounts")
		require.NoError(t, err)
		assert.JSONEq(t, `["original"]`, string(accounts))

		_, err = s.Get(ctx, "transactions")
		assert.ErrorIs(t, err, kv.ErrKeyNotFound)
	})

	t.Run("json helpers", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		var name string
		found, err := kv.GetJSON(ctx, s, "username", &name)
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, kv.SetJSON(ctx, s, "username", "Ada"))
		found, err = kv.GetJSON(ctx, s, "username", &name)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "Ada", name)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
