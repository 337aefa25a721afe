package testdb

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kislikjeka/pocketledger/internal/infra/postgres"
)

// TestDB is a throwaway PostgreSQL with the kv_entries schema applied
type TestDB struct {
	Container *tcpostgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// NewTestDB starts a PostgreSQL container and applies the store's embedded
// migrations, the same path the api binary takes at startup.
func NewTestDB(ctx context.Context) (*TestDB, error) {
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pocketledger_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(120*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	db := &TestDB{Container: container}
	if err := db.connect(ctx); err != nil {
		_ = db.Close(ctx)
		return nil, err
	}
	return db, nil
}

func (db *TestDB) connect(ctx context.Context) error {
	connStr, err := db.Container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get connection string: %w", err)
	}
	db.ConnStr = connStr

	pool, err := postgres.NewPool(ctx, postgres.Config{URL: connStr, MaxConns: 5})
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	db.Pool = pool

	if err := postgres.RunMigrations(pool); err != nil {
		return fmt.Errorf("failed to migrate test database: %w", err)
	}
	return nil
}

// Reset removes every stored entry, keeping the schema
func (db *TestDB) Reset(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, "TRUNCATE TABLE kv_entries"); err != nil {
		return fmt.Errorf("failed to truncate kv_entries: %w", err)
	}
	return nil
}

// Close closes the connection pool and terminates the container
func (db *TestDB) Close(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}
