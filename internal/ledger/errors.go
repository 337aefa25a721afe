package ledger

import (
	"errors"
	"fmt"
)

// Lookup errors
var (
	ErrNotFound = errors.New("not found")

	// ErrMissingField is reported when a required input field is absent. It
	// matches ErrNotFound so callers treating absence uniformly keep working.
	ErrMissingField = fmt.Errorf("missing required field: %w", ErrNotFound)
)

// Conflict errors
var (
	ErrDuplicateName = errors.New("account name already exists")
	ErrDuplicateID   = errors.New("id already in use")
)

// Validation errors
var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidType   = errors.New("invalid type")
	ErrInvalidDate   = errors.New("date must be YYYY-MM-DD")
)

// ErrStoreFailure wraps any failure of the underlying key-value store
var ErrStoreFailure = errors.New("store failure")

func storeFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
}

// isDomainError reports whether err already carries a ledger classification
func isDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrDuplicateName, ErrDuplicateID,
		ErrInvalidAmount, ErrInvalidType, ErrInvalidDate, ErrStoreFailure,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
