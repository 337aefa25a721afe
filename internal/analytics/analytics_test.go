package analytics_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pocketledger/internal/analytics"
	"github.com/kislikjeka/pocketledger/internal/ledger"
)

func tx(typ ledger.TransactionType, amount, category, date string) ledger.Transaction {
	return ledger.Transaction{
		ID:       category + date,
		Type:     typ,
		Amount:   decimal.RequireFromString(amount),
		Category: category,
		Date:     date,
	}
}

var sample = []ledger.Transaction{
	tx(ledger.TransactionTypeIncome, "3000", "Salary", "2024-02-01"),
	tx(ledger.TransactionTypeExpense, "120.50", "Food", "2024-02-03"),
	tx(ledger.TransactionTypeExpense, "79.50", "Food", "2024-02-29"),
	tx(ledger.TransactionTypeExpense, "900", "Rent", "2024-02-05"),
	tx(ledger.TransactionTypeExpense, "200", "Fun", "2024-02-10"),
	tx(ledger.TransactionTypeExpense, "15", "", "2024-02-11"),
	tx(ledger.TransactionTypeExpense, "999", "Food", "2024-03-01"),
	tx(ledger.TransactionTypeIncome, "10", "Gift", "2024-01-31"),
}

func TestMonthly(t *testing.T) {
	stats := analytics.Monthly(sample, 2024, 2)

	assert.Equal(t, 2024, stats.Year)
	assert.Equal(t, 2, stats.Month)
	assert.True(t, stats.Income.Equal(decimal.RequireFromString("3000")), stats.Income.String())
	assert.True(t, stats.Expense.Equal(decimal.RequireFromString("1315")), stats.Expense.String())
	assert.True(t, stats.Savings.Equal(decimal.RequireFromString("1685")), stats.Savings.String())
}

func TestMonthly_EmptyMonth(t *testing.T) {
	stats := analytics.Monthly(sample, 2023, 7)
	assert.True(t, stats.Income.IsZero())
	assert.True(t, stats.Expense.IsZero())
	assert.True(t, stats.Savings.IsZero())
}

func TestMonthBounds(t *testing.T) {
	start, end := analytics.MonthBounds(2024, 4)
	assert.Equal(t, "2024-04-01", start)
	assert.Equal(t, "2024-04-31", end)

	// the naive bound still includes the true last day
	assert.True(t, "2024-04-30" <= end)
	assert.False(t, "2024-05-01" <= end)
}

func TestByCategory(t *testing.T) {
	got := analytics.ByCategory(sample, 2024, 2)

	require.Len(t, got, 4)
	assert.Equal(t, "Rent", got[0].Category)
	assert.Equal(t, "Food", got[1].Category)
	assert.True(t, got[1].Total.Equal(decimal.RequireFromString("200")))
	assert.Equal(t, "Fun", got[2].Category, "ties ordered by name")
	assert.Equal(t, analytics.Uncategorized, got[3].Category)
}

type stubReader struct {
	txs    []ledger.Transaction
	filter ledger.TransactionFilter
	err    error
}

func (s *stubReader) GetTransactions(_ context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	s.filter = f
	return s.txs, s.err
}

func TestService(t *testing.T) {
	ctx := context.Background()
	reader := &stubReader{txs: sample}
	svc := analytics.NewService(reader)

	stats, err := svc.MonthlyStats(ctx, 2024, 2)
	require.NoError(t, err)
	assert.True(t, stats.Expense.Equal(decimal.RequireFromString("1315")))
	assert.Equal(t, "2024-02-01", reader.filter.StartDate)
	assert.Equal(t, "2024-02-31", reader.filter.EndDate)

	categories, err := svc.CategoryStats(ctx, 2024, 2)
	require.NoError(t, err)
	assert.Len(t, categories, 4)

	_, err = svc.MonthlyStats(ctx, 2024, 13)
	assert.ErrorIs(t, err, analytics.ErrInvalidPeriod)

	reader.err = errors.New("boom")
	_, err = svc.CategoryStats(ctx, 2024, 2)
	assert.Error(t, err)
}
