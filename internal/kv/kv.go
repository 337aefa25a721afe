// Package kv defines the persistent key-value store the ledger is kept in.
//
// The ledger stores whole collections as JSON values under a handful of keys.
// Every backend supports Update, which commits all writes made through the
// supplied Tx together or not at all, so one logical ledger step never leaves
// the accounts and transactions collections out of step with each other.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrKeyNotFound is returned by Get when the key holds no value
var ErrKeyNotFound = errors.New("key not found")

// Reader reads raw values
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Writer writes raw values
type Writer interface {
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Tx is the view of the store handed to an Update callback
type Tx interface {
	Reader
	Writer
}

// Store is a durable key-value store
type Store interface {
	Tx

	// Update runs fn and commits every write it made atomically. If fn returns
	// an error nothing is written.
	Update(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// GetJSON decodes the value stored at key into v. It reports false, with no
// error, when the key is absent.
func GetJSON(ctx context.Context, r Reader, key string, v any) (bool, error) {
	data, err := r.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key
func SetJSON(ctx context.Context, w Writer, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return w.Set(ctx, key, data)
}
