package kv

import (
	"context"
	"sort"
)

// Change is one pending write recorded by a Staging tx
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Staging buffers writes on top of a base reader. Reads see the buffered
// writes first. Backends without native transactions (memory, redis) run the
// Update callback against a Staging and then flush Changes in one atomic step.
type Staging struct {
	base    Reader
	pending map[string]Change
}

// NewStaging returns a Staging reading through to base
func NewStaging(base Reader) *Staging {
	return &Staging{base: base, pending: make(map[string]Change)}
}

// Get returns the buffered value for key, or the base value
func (s *Staging) Get(ctx context.Context, key string) ([]byte, error) {
	if c, ok := s.pending[key]; ok {
		if c.Deleted {
			return nil, ErrKeyNotFound
		}
		return clone(c.Value), nil
	}
	return s.base.Get(ctx, key)
}

// Set buffers a write
func (s *Staging) Set(_ context.Context, key string, value []byte) error {
	s.pending[key] = Change{Key: key, Value: clone(value)}
	return nil
}

// Delete buffers deletions
func (s *Staging) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.pending[key] = Change{Key: key, Deleted: true}
	}
	return nil
}

// Changes returns the buffered writes ordered by key
func (s *Staging) Changes() []Change {
	out := make([]Change, 0, len(s.pending))
	for _, c := range s.pending {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
