// Package backend builds the configured infrastructure: the key-value store,
// the event publisher and the backup sink.
package backend

import (
	"context"
	"fmt"
	"io"

	"github.com/kislikjeka/pocketledger/internal/backup"
	"github.com/kislikjeka/pocketledger/internal/infra/amqp"
	"github.com/kislikjeka/pocketledger/internal/infra/gcs"
	"github.com/kislikjeka/pocketledger/internal/infra/memory"
	"github.com/kislikjeka/pocketledger/internal/infra/postgres"
	"github.com/kislikjeka/pocketledger/internal/infra/redis"
	"github.com/kislikjeka/pocketledger/internal/infra/sqlite"
	"github.com/kislikjeka/pocketledger/internal/kv"
	"github.com/kislikjeka/pocketledger/internal/ledger"
	"github.com/kislikjeka/pocketledger/pkg/config"
	"github.com/kislikjeka/pocketledger/pkg/logger"
)

// OpenStore opens the store selected by cfg.StoreBackend
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (kv.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memory.NewStore(), nil
	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		s, err := redis.Connect(ctx, redis.Options{
			Addr:      cfg.RedisURL,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendPostgres:
		s, err := postgres.Open(ctx, postgres.Config{URL: cfg.DatabaseURL}, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenPublisher connects to the broker when AMQP_URL is set. Without it
// events are dropped.
func OpenPublisher(cfg *config.Config, log *logger.Logger) (ledger.EventPublisher, io.Closer, error) {
	if cfg.AMQPURL == "" {
		return ledger.NopPublisher{}, nopCloser{}, nil
	}
	p, err := amqp.Dial(cfg.AMQPURL, cfg.AMQPExchange, log)
	if err != nil {
		return nil, nil, err
	}
	return p, p, nil
}

// OpenSink returns the configured backup sink, or nil when exports stay in
// the store only
func OpenSink(ctx context.Context, cfg *config.Config, log *logger.Logger) (backup.Sink, io.Closer, error) {
	switch {
	case cfg.BackupGCSBucket != "":
		s, err := gcs.NewSink(ctx, cfg.BackupGCSBucket, cfg.BackupGCSPrefix, log)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case cfg.BackupDir != "":
		return backup.DirSink{Dir: cfg.BackupDir}, nopCloser{}, nil
	default:
		return nil, nopCloser{}, nil
	}
}
