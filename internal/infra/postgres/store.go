// Package postgres implements kv.Store on a PostgreSQL table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/pocketledger/internal/kv"
	"github.com/kislikjeka/pocketledger/pkg/logger"
)

// Config holds database configuration
type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPool creates a connection pool and verifies it answers
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// A single-user ledger needs few connections
	config.MaxConns = 4
	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	config.MinConns = 1
	if cfg.MinConns > 0 {
		config.MinConns = cfg.MinConns
	}
	config.MaxConnLifetime = time.Hour
	if cfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = cfg.MaxConnLifetime
	}
	config.MaxConnIdleTime = 30 * time.Minute
	if cfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// Store is a kv.Store on the kv_entries table
type Store struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// Open connects, migrates and returns a store that owns the pool
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Store, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStore(pool, log), nil
}

// NewStore wraps an existing pool
func NewStore(pool *pgxpool.Pool, log *logger.Logger) *Store {
	return &Store{pool: pool, logger: logger.OrNop(log).WithComponent(logger.ComponentPostgres)}
}

// Get returns the value at key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.getQueryer(ctx).QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, kv.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts the value at key
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.getQueryer(ctx).Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.getQueryer(ctx).Exec(ctx, `DELETE FROM kv_entries WHERE key = ANY($1)`, keys); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Update runs fn in one database transaction
func (s *Store) Update(ctx context.Context, fn func(tx kv.Tx) error) error {
	txCtx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rbErr := s.RollbackTx(txCtx); rbErr != nil {
			s.logger.WithError(rbErr).Error("rollback failed")
		}
	}()

	if err := fn(&txView{store: s, tx: s.getTxFromContext(txCtx)}); err != nil {
		return err
	}

	return s.CommitTx(txCtx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Transactions are carried in the context so Get/Set/Delete join them

type ctxKey string

const txContextKey ctxKey = "kv_tx"

// BeginTx starts a database transaction and stores it in the context
func (s *Store) BeginTx(ctx context.Context) (context.Context, error) {
	if tx := s.getTxFromContext(ctx); tx != nil {
		return ctx, fmt.Errorf("transaction already in progress")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ctx, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return context.WithValue(ctx, txContextKey, tx), nil
}

// CommitTx commits the transaction from the context
func (s *Store) CommitTx(ctx context.Context) error {
	tx := s.getTxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RollbackTx rolls back the transaction from the context. Rolling back a
// committed transaction is a no-op.
func (s *Store) RollbackTx(ctx context.Context) error {
	tx := s.getTxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

func (s *Store) getTxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// getQueryer returns the transaction in ctx, otherwise the pool
func (s *Store) getQueryer(ctx context.Context) interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
} {
	if tx := s.getTxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// txView binds the open transaction to whatever context the callback passes
type txView struct {
	store *Store
	tx    pgx.Tx
}

func (t *txView) bind(ctx context.Context) context.Context {
	return context.WithValue(ctx, txContextKey, t.tx)
}

func (t *txView) Get(ctx context.Context, key string) ([]byte, error) {
	return t.store.Get(t.bind(ctx), key)
}

func (t *txView) Set(ctx context.Context, key string, value []byte) error {
	return t.store.Set(t.bind(ctx), key, value)
}

func (t *txView) Delete(ctx context.Context, keys ...string) error {
	return t.store.Delete(t.bind(ctx), keys...)
}
