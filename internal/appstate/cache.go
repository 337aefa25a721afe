// Package appstate keeps the in-memory mirror of the ledger that the
// presentation layer reads.
//
// Mutations are applied optimistically: the cache publishes the expected
// result first, then asks the ledger to persist it. On success the four views
// are reloaded from the store and that reload becomes the state of record. On
// failure the state from before the call is restored exactly.
package appstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/kislikjeka/pocketledger/internal/analytics"
	"github.com/kislikjeka/pocketledger/internal/ledger"
	"github.com/kislikjeka/pocketledger/pkg/clock"
	"github.com/kislikjeka/pocketledger/pkg/logger"
)

// Ledger is the durable side of every mutation
type Ledger interface {
	AddTransaction(ctx context.Context, in ledger.TransactionInput) (*ledger.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, patch ledger.TransactionPatch) (*ledger.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	AddAccount(ctx context.Context, in ledger.AccountInput) (*ledger.Account, error)
	UpdateAccount(ctx context.Context, id string, patch ledger.AccountPatch) (*ledger.Account, error)
	AdjustOpeningBalance(ctx context.Context, id string, opening decimal.Decimal) (*ledger.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	GetTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error)
	GetAccounts(ctx context.Context) ([]ledger.Account, error)
}

// Analytics supplies the two summary views
type Analytics interface {
	MonthlyStats(ctx context.Context, year, month int) (analytics.MonthlyStats, error)
	CategoryStats(ctx context.Context, year, month int) ([]analytics.CategoryTotal, error)
}

// State is one published view of the ledger
type State struct {
	Transactions []ledger.Transaction
	Accounts     []ledger.Account
	Monthly      analytics.MonthlyStats
	Categories   []analytics.CategoryTotal

	// Filter selected Transactions; Period selected Monthly and Categories
	Filter ledger.TransactionFilter
	Period clock.Period
}

func (s State) clone() State {
	out := s
	out.Transactions = append([]ledger.Transaction(nil), s.Transactions...)
	out.Accounts = append([]ledger.Account(nil), s.Accounts...)
	out.Categories = append([]analytics.CategoryTotal(nil), s.Categories...)
	return out
}

func (s State) books() ledger.Books {
	return ledger.Books{Accounts: s.Accounts, Transactions: s.Transactions}
}

// Cache owns the current State. Its mutation methods are the only write
// surface the presentation layer uses.
type Cache struct {
	ledger    Ledger
	analytics Analytics
	clock     clock.Clock
	logger    *logger.Logger

	// writeMu serializes mutations and bulk operations
	writeMu sync.Mutex

	mu        sync.RWMutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

// NewCache creates an empty cache focused on the current month. Call Reload
// to fill it.
func NewCache(l Ledger, a Analytics, clk clock.Clock, log *logger.Logger) *Cache {
	clk = clock.OrSystem(clk)
	period := clock.CurrentPeriod(clk)
	return &Cache{
		ledger:    l,
		analytics: a,
		clock:     clk,
		logger:    logger.OrNop(log).WithComponent(logger.ComponentAppState),
		state: State{
			Transactions: []ledger.Transaction{},
			Accounts:     []ledger.Account{},
			Categories:   []analytics.CategoryTotal{},
			Monthly:      analytics.MonthlyStats{Year: period.Year, Month: period.Month},
			Period:       period,
		},
		listeners: make(map[int]func(State)),
	}
}

// State returns a copy of the current state
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.clone()
}

// Subscribe registers fn to receive every published state. The returned
// function removes the subscription.
func (c *Cache) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// publish replaces the state and notifies listeners outside the lock
func (c *Cache) publish(s State) {
	c.mu.Lock()
	c.state = s
	listeners := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(s.clone())
	}
}

func (c *Cache) update(fn func(*State)) {
	s := c.State()
	fn(&s)
	c.publish(s)
}

// LoadTransactions replaces the transaction view with the filtered list
func (c *Cache) LoadTransactions(ctx context.Context, filter ledger.TransactionFilter) error {
	txs, err := c.ledger.GetTransactions(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}
	c.update(func(s *State) {
		s.Transactions = txs
		s.Filter = filter
	})
	return nil
}

// LoadAccounts replaces the account view
func (c *Cache) LoadAccounts(ctx context.Context) error {
	accounts, err := c.ledger.GetAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	c.update(func(s *State) { s.Accounts = accounts })
	return nil
}

// LoadMonthlyStats replaces the monthly summary and focuses the month
func (c *Cache) LoadMonthlyStats(ctx context.Context, year, month int) error {
	stats, err := c.analytics.MonthlyStats(ctx, year, month)
	if err != nil {
		return fmt.Errorf("failed to load monthly stats: %w", err)
	}
	c.update(func(s *State) {
		s.Monthly = stats
		s.Period = clock.Period{Year: year, Month: month}
	})
	return nil
}

// LoadCategoryStats replaces the category breakdown and focuses the month
func (c *Cache) LoadCategoryStats(ctx context.Context, year, month int) error {
	categories, err := c.analytics.CategoryStats(ctx, year, month)
	if err != nil {
		return fmt.Errorf("failed to load category stats: %w", err)
	}
	c.update(func(s *State) {
		s.Categories = categories
		s.Period = clock.Period{Year: year, Month: month}
	})
	return nil
}

// SetPeriod focuses the summaries on another month and reloads them
func (c *Cache) SetPeriod(ctx context.Context, p clock.Period) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %04d-%02d", analytics.ErrInvalidPeriod, p.Year, p.Month)
	}
	c.update(func(s *State) { s.Period = p })
	return c.Reload(ctx)
}

// Reload fetches the four views concurrently and publishes them together
func (c *Cache) Reload(ctx context.Context) error {
	current := c.State()
	next := current

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := c.ledger.GetTransactions(gctx, current.Filter)
		if err != nil {
			return fmt.Errorf("failed to load transactions: %w", err)
		}
		next.Transactions = txs
		return nil
	})
	g.Go(func() error {
		accounts, err := c.ledger.GetAccounts(gctx)
		if err != nil {
			return fmt.Errorf("failed to load accounts: %w", err)
		}
		next.Accounts = accounts
		return nil
	})
	g.Go(func() error {
		stats, err := c.analytics.MonthlyStats(gctx, current.Period.Year, current.Period.Month)
		if err != nil {
			return fmt.Errorf("failed to load monthly stats: %w", err)
		}
		next.Monthly = stats
		return nil
	})
	g.Go(func() error {
		categories, err := c.analytics.CategoryStats(gctx, current.Period.Year, current.Period.Month)
		if err != nil {
			return fmt.Errorf("failed to load category stats: %w", err)
		}
		next.Categories = categories
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.publish(next)
	return nil
}

// Bulk runs an operation that replaces ledger state wholesale (restore,
// clear) and reloads afterwards
func (c *Cache) Bulk(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := fn(ctx); err != nil {
		return err
	}
	if err := c.Reload(ctx); err != nil {
		return fmt.Errorf("reload after %s: %w", op, err)
	}
	return nil
}
