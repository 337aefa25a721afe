package appstate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pocketledger/internal/ledger"
	"github.com/kislikjeka/pocketledger/pkg/clock"
	"github.com/kislikjeka/pocketledger/pkg/logger"
)

// mutate runs the optimistic protocol for one operation. guess computes the
// expected books from the snapshot; persist performs the durable call.
func (c *Cache) mutate(
	ctx context.Context,
	op string,
	guess func(ledger.Books) (ledger.Books, error),
	persist func(ctx context.Context) error,
) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx = context.WithValue(ctx, logger.OperationKey, op)
	log := c.logger.WithContext(ctx)
	snapshot := c.State()

	if next, err := guess(snapshot.books()); err != nil {
		// The view may be filtered or stale; let the ledger decide
		log.WithError(err).Debug("optimistic update skipped")
	} else {
		optimistic := snapshot.clone()
		optimistic.Accounts = next.Accounts
		optimistic.Transactions = next.Filter(snapshot.Filter)
		c.publish(optimistic)
	}

	if err := persist(ctx); err != nil {
		c.publish(snapshot)
		log.WithError(err).Warn("mutation failed, state rolled back")
		return err
	}

	if err := c.Reload(ctx); err != nil {
		log.WithError(err).Error("reload after mutation failed")
		return fmt.Errorf("reload after %s: %w", op, err)
	}
	return nil
}

// AddTransaction records a transaction. The id is assigned up front so the
// optimistic entry and the stored one match.
func (c *Cache) AddTransaction(ctx context.Context, in ledger.TransactionInput) (*ledger.Transaction, error) {
	if in.ID == "" {
		in.ID = ledger.NewID()
	}
	var added *ledger.Transaction
	err := c.mutate(ctx, "add transaction",
		func(b ledger.Books) (ledger.Books, error) {
			next, _, err := b.AddTransaction(in)
			return next, err
		},
		func(ctx context.Context) error {
			t, err := c.ledger.AddTransaction(ctx, in)
			added = t
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	return added, nil
}

// UpdateTransaction patches a transaction
func (c *Cache) UpdateTransaction(ctx context.Context, id string, patch ledger.TransactionPatch) (*ledger.Transaction, error) {
	var updated *ledger.Transaction
	err := c.mutate(ctx, "update transaction",
		func(b ledger.Books) (ledger.Books, error) {
			next, _, err := b.UpdateTransaction(id, patch)
			return next, err
		},
		func(ctx context.Context) error {
			t, err := c.ledger.UpdateTransaction(ctx, id, patch)
			updated = t
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTransaction removes a transaction
func (c *Cache) DeleteTransaction(ctx context.Context, id string) error {
	return c.mutate(ctx, "delete transaction",
		func(b ledger.Books) (ledger.Books, error) {
			next, _, err := b.DeleteTransaction(id)
			return next, err
		},
		func(ctx context.Context) error {
			return c.ledger.DeleteTransaction(ctx, id)
		},
	)
}

// AddAccount creates an account
func (c *Cache) AddAccount(ctx context.Context, in ledger.AccountInput) (*ledger.Account, error) {
	if in.ID == "" {
		in.ID = ledger.NewID()
	}
	var added *ledger.Account
	err := c.mutate(ctx, "add account",
		func(b ledger.Books) (ledger.Books, error) {
			next, _, err := b.AddAccount(in, c.clock.Now())
			return next, err
		},
		func(ctx context.Context) error {
			a, err := c.ledger.AddAccount(ctx, in)
			added = a
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	return added, nil
}

// UpdateAccount patches an account
func (c *Cache) UpdateAccount(ctx context.Context, id string, patch ledger.AccountPatch) (*ledger.Account, error) {
	var updated *ledger.Account
	err := c.mutate(ctx, "update account",
		func(b ledger.Books) (ledger.Books, error) {
			next, _, err := b.UpdateAccount(id, patch)
			return next, err
		},
		func(ctx context.Context) error {
			a, err := c.ledger.UpdateAccount(ctx, id, patch)
			updated = a
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AdjustOpeningBalance corrects an account's opening balance
func (c *Cache) AdjustOpeningBalance(ctx context.Context, id string, opening decimal.Decimal) (*ledger.Account, error) {
	var updated *ledger.Account
	err := c.mutate(ctx, "adjust opening balance",
		func(b ledger.Books) (ledger.Books, error) {
			next, _, err := b.AdjustOpeningBalance(id, opening)
			return next, err
		},
		func(ctx context.Context) error {
			a, err := c.ledger.AdjustOpeningBalance(ctx, id, opening)
			updated = a
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteAccount removes an account
func (c *Cache) DeleteAccount(ctx context.Context, id string) error {
	return c.mutate(ctx, "delete account",
		func(b ledger.Books) (ledger.Books, error) {
			next, _, err := b.DeleteAccount(id)
			return next, err
		},
		func(ctx context.Context) error {
			return c.ledger.DeleteAccount(ctx, id)
		},
	)
}

// Summary is the quick overview derived from the in-memory mirror
type Summary struct {
	TotalBalance decimal.Decimal `json:"totalBalance"`
	Year         int             `json:"year"`
	Month        int             `json:"month"`
	Income       decimal.Decimal `json:"income"`
	Expense      decimal.Decimal `json:"expense"`
	Savings      decimal.Decimal `json:"savings"`
}

// Stats sums all account balances and the current calendar month's income
// and expense from the mirrored transactions. Each date is parsed, so unlike
// the store aggregation the month is calendar-exact; unparsable dates are
// skipped.
func (c *Cache) Stats() Summary {
	s := c.State()
	now := c.clock.Now()
	out := Summary{Year: now.Year(), Month: int(now.Month())}

	for _, a := range s.Accounts {
		out.TotalBalance = out.TotalBalance.Add(a.Balance)
	}
	for _, t := range s.Transactions {
		d, err := time.Parse(clock.DateLayout, t.Date)
		if err != nil || d.Year() != now.Year() || d.Month() != now.Month() {
			continue
		}
		switch t.Type {
		case ledger.TransactionTypeIncome:
			out.Income = out.Income.Add(t.Amount)
		case ledger.TransactionTypeExpense:
			out.Expense = out.Expense.Add(t.Amount)
		}
	}
	out.Savings = out.Income.Sub(out.Expense)
	return out
}
