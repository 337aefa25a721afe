// Package redis implements kv.Store on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kislikjeka/pocketledger/internal/kv"
	"github.com/kislikjeka/pocketledger/pkg/logger"
)

// DefaultKeyPrefix namespaces ledger keys inside a shared Redis database
const DefaultKeyPrefix = "pocketledger:"

// Options configures the client created by Connect
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store is a kv.Store on a Redis client. Values never expire.
type Store struct {
	client *redis.Client
	prefix string
	logger *logger.Logger
}

// Connect dials Redis, verifies the connection and returns a store
func Connect(ctx context.Context, opts Options, log *logger.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewStore(client, opts.KeyPrefix, log), nil
}

// NewStore wraps an existing client. An empty prefix falls back to DefaultKeyPrefix.
func NewStore(client *redis.Client, prefix string, log *logger.Logger) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger.OrNop(log).WithComponent(logger.ComponentRedis),
	}
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Get returns the value at key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kv.ErrKeyNotFound
	}
	if err != nil {
		s.logger.Error("redis error", "operation", "get", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value at key without expiry
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		s.logger.Error("redis error", "operation", "set", "key", key, "error", err)
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// maxUpdateAttempts bounds how often Update re-runs fn after a watched key
// changed underneath it
const maxUpdateAttempts = 5

// ErrConflict is returned when every attempt of an Update lost the race for
// the keys it read
var ErrConflict = errors.New("redis: concurrent update, retries exhausted")

// Update runs fn against a staging view whose reads WATCH the keys they
// touch, then flushes the staged writes in one MULTI/EXEC. If another client
// changed a watched key the transaction aborts and fn runs again on fresh data.
func (s *Store) Update(ctx context.Context, fn func(tx kv.Tx) error) error {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		var fnErr error
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			staging := kv.NewStaging(&watchedReader{store: s, tx: rtx})
			if fnErr = fn(staging); fnErr != nil {
				return fnErr
			}

			changes := staging.Changes()
			if len(changes) == 0 {
				return nil
			}

			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, c := range changes {
					if c.Deleted {
						pipe.Del(ctx, s.key(c.Key))
						continue
					}
					pipe.Set(ctx, s.key(c.Key), c.Value, 0)
				}
				return nil
			})
			return err
		})
		if fnErr != nil {
			return fnErr
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("watched key changed, retrying update", "attempt", attempt)
			continue
		}
		if err != nil {
			s.logger.Error("redis error", "operation", "update", "error", err)
			return fmt.Errorf("failed to commit update: %w", err)
		}
		return nil
	}
	return ErrConflict
}

// watchedReader reads through the WATCH connection, watching each key
// before its first read
type watchedReader struct {
	store   *Store
	tx      *redis.Tx
	watched map[string]bool
}

func (r *watchedReader) Get(ctx context.Context, key string) ([]byte, error) {
	full := r.store.key(key)
	if !r.watched[full] {
		if err := r.tx.Watch(ctx, full).Err(); err != nil {
			return nil, fmt.Errorf("failed to watch %s: %w", key, err)
		}
		if r.watched == nil {
			r.watched = make(map[string]bool)
		}
		r.watched[full] = true
	}

	val, err := r.tx.Get(ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kv.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, nil
}

// Clear removes every key under the store prefix
func (s *Store) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()

	pipe := s.client.Pipeline()
	count := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		count++
		if count >= 100 {
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to clear store: %w", err)
			}
			pipe = s.client.Pipeline()
			count = 0
		}
	}

	if count > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
	}

	return iter.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
