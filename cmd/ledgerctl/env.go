package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kislikjeka/pocketledger/internal/analytics"
	"github.com/kislikjeka/pocketledger/internal/backup"
	"github.com/kislikjeka/pocketledger/internal/infra/backend"
	"github.com/kislikjeka/pocketledger/internal/kv"
	"github.com/kislikjeka/pocketledger/internal/ledger"
	"github.com/kislikjeka/pocketledger/internal/migration"
	"github.com/kislikjeka/pocketledger/pkg/config"
	"github.com/kislikjeka/pocketledger/pkg/logger"
)

// env holds the services a command needs. Logs go to stderr so that
// stdout carries only command output.
type env struct {
	cfg       *config.Config
	log       *logger.Logger
	store     kv.Store
	ledger    *ledger.Service
	analytics *analytics.Service
	backup    *backup.Service
	migrator  *migration.Migrator
	closers   []io.Closer
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Env, os.Stderr).WithComponent(logger.ComponentCLI)

	store, err := backend.OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	e := &env{cfg: cfg, log: log, store: store, closers: []io.Closer{store}}

	publisher, pubCloser, err := backend.OpenPublisher(cfg, log)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	e.closers = append(e.closers, pubCloser)

	sink, sinkCloser, err := backend.OpenSink(ctx, cfg, log)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open backup sink: %w", err)
	}
	e.closers = append(e.closers, sinkCloser)

	e.ledger = ledger.NewService(store, ledger.WithPublisher(publisher), ledger.WithLogger(log))
	e.analytics = analytics.NewService(e.ledger)
	opts := []backup.Option{backup.WithPublisher(publisher), backup.WithLogger(log)}
	if sink != nil {
		opts = append(opts, backup.WithSink(sink))
	}
	e.backup = backup.NewService(store, opts...)
	e.migrator = migration.NewMigrator(store, log)
	return e, nil
}

// Close releases everything in reverse order of opening
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			e.log.WithError(err).Warn("close failed")
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
