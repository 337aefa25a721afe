// Package memory is an in-process kv.Store used by tests and the memory backend.
package memory

import (
	"context"
	"sync"

	"github.com/kislikjeka/pocketledger/internal/kv"
)

// Store keeps values in a map guarded by a mutex
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get returns a copy of the value at key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(key)
}

func (s *Store) get(key string) ([]byte, error) {
	v, ok := s.data[key]
	if !ok {
		return nil, kv.ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores a copy of value
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value)
	return nil
}

func (s *Store) set(key string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
}

// Delete removes keys; absent keys are ignored
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

// Update holds the write lock for the whole callback and applies the staged
// writes only when fn succeeds
func (s *Store) Update(ctx context.Context, fn func(tx kv.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staging := kv.NewStaging(lockedReader{s})
	if err := fn(staging); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, c := range staging.Changes() {
		if c.Deleted {
			delete(s.data, c.Key)
			continue
		}
		s.set(c.Key, c.Value)
	}
	return nil
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

// Keys returns the stored keys, for tests and diagnostics
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// lockedReader reads without taking the lock; the caller already holds it
type lockedReader struct {
	s *Store
}

func (r lockedReader) Get(_ context.Context, key string) ([]byte, error) {
	return r.s.get(key)
}
