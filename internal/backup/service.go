package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kislikjeka/pocketledger/internal/kv"
	"github.com/kislikjeka/pocketledger/internal/ledger"
	"github.com/kislikjeka/pocketledger/internal/profile"
	"github.com/kislikjeka/pocketledger/pkg/clock"
	"github.com/kislikjeka/pocketledger/pkg/logger"
)

var emptyList = json.RawMessage("[]")

// Service performs whole-state export and import directly on the store,
// bypassing the ledger's incremental mutation path
type Service struct {
	store     kv.Store
	sink      Sink
	publisher ledger.EventPublisher
	clock     clock.Clock
	logger    *logger.Logger
}

// Option configures a Service
type Option func(*Service)

// WithSink sends every export to sink as well
func WithSink(sink Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithPublisher announces restores and clears
func WithPublisher(p ledger.EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock sets the clock used to stamp snapshots
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = clock.OrSystem(c) }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.logger = logger.OrNop(l).WithComponent(logger.ComponentBackup) }
}

// NewService creates a new backup service
func NewService(store kv.Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: ledger.NopPublisher{},
		clock:     clock.System{},
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export reads both collections and the profile as they are stored, stamps
// them, and keeps the result under KeyLastBackup. The balance invariant is
// not checked.
func (s *Service) Export(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Timestamp: s.clock.Now().UTC(),
		Version:   FormatVersion,
	}

	err := s.store.Update(ctx, func(tx kv.Tx) error {
		var err error
		if snap.Data.Accounts, err = readList(ctx, tx, ledger.KeyAccounts); err != nil {
			return err
		}
		if snap.Data.Transactions, err = readList(ctx, tx, ledger.KeyTransactions); err != nil {
			return err
		}
		if snap.Data.Username, err = profile.ReadUsername(ctx, tx); err != nil {
			return err
		}
		return kv.SetJSON(ctx, tx, KeyLastBackup, snap)
	})
	if err != nil {
		return nil, storeFailure("export", err)
	}

	if s.sink != nil {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}
		if err := s.sink.Write(ctx, snap.FileName(), data); err != nil {
			return nil, fmt.Errorf("write snapshot to sink: %w", err)
		}
	}

	accounts, transactions := snap.Counts()
	s.logger.WithContext(ctx).Info("ledger exported",
		"accounts", accounts,
		"transactions", transactions,
	)
	return snap, nil
}

// Restore replaces both collections and the profile with the snapshot's
// contents in one atomic write. The snapshot is validated before anything is
// written. Migration is not run.
func (s *Service) Restore(ctx context.Context, snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if snap.Version != FormatVersion {
		s.logger.WithContext(ctx).Warn("restoring snapshot with unknown version", "version", snap.Version)
	}

	err := s.store.Update(ctx, func(tx kv.Tx) error {
		if err := tx.Set(ctx, ledger.KeyAccounts, compact(snap.Data.Accounts)); err != nil {
			return err
		}
		if err := tx.Set(ctx, ledger.KeyTransactions, compact(snap.Data.Transactions)); err != nil {
			return err
		}
		return kv.SetJSON(ctx, tx, profile.KeyUsername, snap.Data.Username)
	})
	if err != nil {
		return storeFailure("restore", err)
	}

	accounts, transactions := snap.Counts()
	s.logger.WithContext(ctx).Info("ledger restored",
		"accounts", accounts,
		"transactions", transactions,
		"snapshot_time", snap.Timestamp,
	)
	s.publish(ctx, ledger.EventLedgerRestored)
	return nil
}

// RestoreJSON parses a snapshot document and restores it
func (s *Service) RestoreJSON(ctx context.Context, data []byte) error {
	snap, err := Parse(data)
	if err != nil {
		return err
	}
	return s.Restore(ctx, snap)
}

// LastBackup returns the snapshot kept by the most recent export
func (s *Service) LastBackup(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	found, err := kv.GetJSON(ctx, s.store, KeyLastBackup, &snap)
	if err != nil {
		return nil, storeFailure("last backup", err)
	}
	if !found {
		return nil, fmt.Errorf("last backup: %w", ledger.ErrNotFound)
	}
	return &snap, nil
}

// RestoreLastBackup restores the snapshot kept by the most recent export
func (s *Service) RestoreLastBackup(ctx context.Context) error {
	snap, err := s.LastBackup(ctx)
	if err != nil {
		return err
	}
	return s.Restore(ctx, snap)
}

// ClearAllData deletes the accounts and transactions collections. The last
// backup and the profile are kept, so a clear can be undone with
// RestoreLastBackup.
func (s *Service) ClearAllData(ctx context.Context) error {
	err := s.store.Update(ctx, func(tx kv.Tx) error {
		return tx.Delete(ctx, ledger.KeyAccounts, ledger.KeyTransactions)
	})
	if err != nil {
		return storeFailure("clear", err)
	}

	s.logger.WithContext(ctx).Info("ledger cleared")
	s.publish(ctx, ledger.EventLedgerCleared)
	return nil
}

func (s *Service) publish(ctx context.Context, t ledger.EventType) {
	e := ledger.Event{Type: t, OccurredAt: s.clock.Now().UTC()}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to publish event", "event", t)
	}
}

// readList returns the raw collection at key, or an empty list when absent
func readList(ctx context.Context, r kv.Reader, key string) (json.RawMessage, error) {
	data, err := r.Get(ctx, key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return emptyList, nil
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("decode %s: stored value is not JSON", key)
	}
	return json.RawMessage(data), nil
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

func storeFailure(op string, err error) error {
	if errors.Is(err, ledger.ErrStoreFailure) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ledger.ErrStoreFailure, err)
}
