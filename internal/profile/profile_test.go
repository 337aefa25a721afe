package profile

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pocketledger/internal/infra/memory"
)

func TestService_Username(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store)

	name, err := svc.Username(ctx)
	require.NoError(t, err)
	assert.Empty(t, name)

	saved, err := svc.SetUsername(ctx, "  Ana  ")
	require.NoError(t, err)
	assert.Equal(t, "Ana", saved)

	raw, err := store.Get(ctx, KeyUsername)
	require.NoError(t, err)
	assert.JSONEq(t, `"Ana"`, string(raw))

	name, err = svc.Username(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ana", name)
}

func TestService_SetUsername_TooLong(t *testing.T) {
	svc := NewService(memory.NewStore())

	_, err := svc.SetUsername(context.Background(), strings.Repeat("x", maxUsernameLength+1))
	assert.ErrorIs(t, err, ErrUsernameTooLong)
}
