// Package profile stores the single local user's display name.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kislikjeka/pocketledger/internal/kv"
	"github.com/kislikjeka/pocketledger/internal/ledger"
)

// KeyUsername holds the display name as a JSON string
const KeyUsername = "username"

// maxUsernameLength bounds the display name in runes
const maxUsernameLength = 64

// ErrUsernameTooLong is returned by SetUsername for names over the limit
var ErrUsernameTooLong = errors.New("username too long")

// Service reads and writes the profile
type Service struct {
	store kv.Store
}

// NewService creates a new profile service
func NewService(store kv.Store) *Service {
	return &Service{store: store}
}

// Username returns the stored display name, or "" when none was set
func (s *Service) Username(ctx context.Context) (string, error) {
	return ReadUsername(ctx, s.store)
}

// SetUsername trims and stores the display name. An empty name clears it.
func (s *Service) SetUsername(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) > maxUsernameLength {
		return "", fmt.Errorf("%w: at most %d characters", ErrUsernameTooLong, maxUsernameLength)
	}
	if err := kv.SetJSON(ctx, s.store, KeyUsername, name); err != nil {
		return "", fmt.Errorf("set username: %w: %w", ledger.ErrStoreFailure, err)
	}
	return name, nil
}

// ReadUsername reads the display name through any reader, including a
// transaction view
func ReadUsername(ctx context.Context, r kv.Reader) (string, error) {
	var name string
	if _, err := kv.GetJSON(ctx, r, KeyUsername, &name); err != nil {
		return "", fmt.Errorf("get username: %w: %w", ledger.ErrStoreFailure, err)
	}
	return name, nil
}
