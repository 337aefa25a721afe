package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pocketledger/internal/kv"
	"github.com/kislikjeka/pocketledger/pkg/clock"
	"github.com/kislikjeka/pocketledger/pkg/logger"
)

// Service is the only writer of the accounts and transactions collections.
//
// Every mutating call reads both collections, computes the next state with
// Books and writes the result back inside one kv.Update, so the balance
// invariant holds after each call returns. Calls are serialized.
type Service struct {
	store     kv.Store
	publisher EventPublisher
	clock     clock.Clock
	logger    *logger.Logger

	mu sync.Mutex
}

// Option configures a Service
type Option func(*Service)

// WithPublisher sets the destination for change events
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock overrides the wall clock
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = clock.OrSystem(c) }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.logger = logger.OrNop(l).WithComponent(logger.ComponentLedger) }
}

// NewService creates a ledger service over store
func NewService(store kv.Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: NopPublisher{},
		clock:     clock.System{},
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTransaction records a transaction and applies its effect to the
// resolved account
func (s *Service) AddTransaction(ctx context.Context, in TransactionInput) (*Transaction, error) {
	var added Transaction
	err := s.mutate(ctx, "add transaction", func(b Books) (Books, error) {
		next, t, err := b.AddTransaction(in)
		added = t
		return next, err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Event{Type: EventTransactionAdded, Transaction: &added})
	return &added, nil
}

// UpdateTransaction merges patch into the stored transaction and moves its
// effect between accounts when needed
func (s *Service) UpdateTransaction(ctx context.Context, id string, patch TransactionPatch) (*Transaction, error) {
	var updated Transaction
	err := s.mutate(ctx, "update transaction", func(b Books) (Books, error) {
		next, t, err := b.UpdateTransaction(id, patch)
		updated = t
		return next, err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Event{Type: EventTransactionUpdated, Transaction: &updated})
	return &updated, nil
}

// DeleteTransaction reverses the transaction's effect and removes it
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	var removed Transaction
	err := s.mutate(ctx, "delete transaction", func(b Books) (Books, error) {
		next, t, err := b.DeleteTransaction(id)
		removed = t
		return next, err
	})
	if err != nil {
		return err
	}

	s.publish(ctx, Event{Type: EventTransactionDeleted, Transaction: &removed})
	return nil
}

// AddAccount creates an account whose balance starts at its opening balance
func (s *Service) AddAccount(ctx context.Context, in AccountInput) (*Account, error) {
	var added Account
	err := s.mutate(ctx, "add account", func(b Books) (Books, error) {
		next, a, err := b.AddAccount(in, s.clock.Now())
		added = a
		return next, err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Event{Type: EventAccountAdded, Account: &added})
	return &added, nil
}

// UpdateAccount renames, retypes or corrects the balance of an account
func (s *Service) UpdateAccount(ctx context.Context, id string, patch AccountPatch) (*Account, error) {
	var updated Account
	err := s.mutate(ctx, "update account", func(b Books) (Books, error) {
		next, a, err := b.UpdateAccount(id, patch)
		updated = a
		return next, err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Event{Type: EventAccountUpdated, Account: &updated})
	return &updated, nil
}

// AdjustOpeningBalance corrects the opening balance of an account
func (s *Service) AdjustOpeningBalance(ctx context.Context, id string, opening decimal.Decimal) (*Account, error) {
	var updated Account
	err := s.mutate(ctx, "adjust opening balance", func(b Books) (Books, error) {
		next, a, err := b.AdjustOpeningBalance(id, opening)
		updated = a
		return next, err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Event{Type: EventAccountUpdated, Account: &updated})
	return &updated, nil
}

// DeleteAccount removes an account and leaves its transactions orphaned
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	var removed Account
	err := s.mutate(ctx, "delete account", func(b Books) (Books, error) {
		next, a, err := b.DeleteAccount(id)
		removed = a
		return next, err
	})
	if err != nil {
		return err
	}

	s.publish(ctx, Event{Type: EventAccountDeleted, Account: &removed})
	return nil
}

// GetTransactions returns the transactions matching filter
func (s *Service) GetTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	b, err := s.Books(ctx)
	if err != nil {
		return nil, err
	}
	return b.Filter(filter), nil
}

// GetTransaction returns one transaction
func (s *Service) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	b, err := s.Books(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := b.Transaction(id)
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return &t, nil
}

// GetAccounts returns every account in stored order
func (s *Service) GetAccounts(ctx context.Context) ([]Account, error) {
	b, err := s.Books(ctx)
	if err != nil {
		return nil, err
	}
	return b.Accounts, nil
}

// GetAccount returns one account
func (s *Service) GetAccount(ctx context.Context, id string) (*Account, error) {
	b, err := s.Books(ctx)
	if err != nil {
		return nil, err
	}
	a, ok := b.Account(id)
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return &a, nil
}

// HasSufficientFunds reports whether the account balance covers amount. It
// only informs; nothing prevents a balance from going negative.
func (s *Service) HasSufficientFunds(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error) {
	a, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	return a.Balance.GreaterThanOrEqual(amount), nil
}

// Reconcile checks every account balance against its transaction history
func (s *Service) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	b, err := s.Books(ctx)
	if err != nil {
		return nil, err
	}

	discrepancies := b.Check()
	for _, d := range discrepancies {
		s.logger.WithContext(ctx).Warn("balance mismatch",
			"account_id", d.AccountID,
			"balance", d.Balance.String(),
			"expected", d.Expected.String(),
		)
	}
	return discrepancies, nil
}

// Books reads both collections
func (s *Service) Books(ctx context.Context) (Books, error) {
	b, err := ReadBooks(ctx, s.store)
	if err != nil {
		return Books{}, storeFailure("read ledger", err)
	}
	return b, nil
}

// ReadBooks decodes both collections. Absent keys read as empty.
func ReadBooks(ctx context.Context, r kv.Reader) (Books, error) {
	var b Books
	if _, err := kv.GetJSON(ctx, r, KeyAccounts, &b.Accounts); err != nil {
		return Books{}, err
	}
	if _, err := kv.GetJSON(ctx, r, KeyTransactions, &b.Transactions); err != nil {
		return Books{}, err
	}
	if b.Accounts == nil {
		b.Accounts = []Account{}
	}
	if b.Transactions == nil {
		b.Transactions = []Transaction{}
	}
	return b, nil
}

// WriteBooks encodes both collections
func WriteBooks(ctx context.Context, w kv.Writer, b Books) error {
	if err := kv.SetJSON(ctx, w, KeyTransactions, b.Transactions); err != nil {
		return err
	}
	return kv.SetJSON(ctx, w, KeyAccounts, b.Accounts)
}

// mutate runs one logical step: read, compute, write, all in one store update
func (s *Service) mutate(ctx context.Context, op string, step func(Books) (Books, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logger.WithContext(ctx).WithField("op", op)

	err := s.store.Update(ctx, func(tx kv.Tx) error {
		current, err := ReadBooks(ctx, tx)
		if err != nil {
			return storeFailure("read ledger", err)
		}

		next, err := step(current)
		if err != nil {
			return err
		}

		if err := WriteBooks(ctx, tx, next); err != nil {
			return storeFailure("write ledger", err)
		}
		return nil
	})
	if err != nil {
		if !isDomainError(err) {
			err = storeFailure(op, err)
		}
		if errors.Is(err, ErrStoreFailure) {
			log.WithError(err).Error("ledger step failed")
		} else {
			log.WithError(err).Debug("ledger step rejected")
		}
		return err
	}

	log.Debug("ledger step committed")
	return nil
}

func (s *Service) publish(ctx context.Context, e Event) {
	e.OccurredAt = s.clock.Now().UTC()
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to publish ledger event", "type", e.Type)
	}
}
