package kv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pocketledger/internal/kv"
)

type mapReader map[string][]byte

func (m mapReader) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m[key]
	if !ok {
		return nil, kv.ErrKeyNotFound
	}
	return v, nil
}

func TestStaging_OverlaysBase(t *testing.T) {
	ctx := context.Background()
	base := mapReader{"a": []byte(`1`), "b": []byte(`2`)}
	s := kv.NewStaging(base)

	require.NoError(t, s.Set(ctx, "a", []byte(`10`)))
	require.NoError(t, s.Delete(ctx, "b"))

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, `10`, string(a))

	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)

	// base untouched until flushed
	assert.Equal(t, `1`, string(base["a"]))

	changes := s.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, kv.Change{Key: "a", Value: []byte(`10`)}, changes[0])
	assert.Equal(t, kv.Change{Key: "b", Deleted: true}, changes[1])
}

func TestStaging_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := kv.NewStaging(mapReader{})

	buf := []byte(`"x"`)
	require.NoError(t, s.Set(ctx, "k", buf))
	buf[1] = 'y'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `"x"`, string(got))
}
