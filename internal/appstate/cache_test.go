package appstate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pocketledger/internal/analytics"
	"github.com/kislikjeka/pocketledger/internal/appstate"
	"github.com/kislikjeka/pocketledger/internal/infra/memory"
	"github.com/kislikjeka/pocketledger/internal/ledger"
	"github.com/kislikjeka/pocketledger/pkg/clock"
)

var now = time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// flakyLedger wraps the real service and can fail writes or reads, or run a
// hook just before a write reaches the store
type flakyLedger struct {
	*ledger.Service
	failWrites bool
	failReads  bool
	beforeCall func()
}

var errPersist = errors.New("persist failed")

func (f *flakyLedger) write() error {
	if f.beforeCall != nil {
		f.beforeCall()
	}
	if f.failWrites {
		return errPersist
	}
	return nil
}

func (f *flakyLedger) AddTransaction(ctx context.Context, in ledger.TransactionInput) (*ledger.Transaction, error) {
	if err := f.write(); err != nil {
		return nil, err
	}
	return f.Service.AddTransaction(ctx, in)
}

func (f *flakyLedger) UpdateTransaction(ctx context.Context, id string, p ledger.TransactionPatch) (*ledger.Transaction, error) {
	if err := f.write(); err != nil {
		return nil, err
	}
	return f.Service.UpdateTransaction(ctx, id, p)
}

func (f *flakyLedger) DeleteTransaction(ctx context.Context, id string) error {
	if err := f.write(); err != nil {
		return err
	}
	return f.Service.DeleteTransaction(ctx, id)
}

func (f *flakyLedger) AddAccount(ctx context.Context, in ledger.AccountInput) (*ledger.Account, error) {
	if err := f.write(); err != nil {
		return nil, err
	}
	return f.Service.AddAccount(ctx, in)
}

func (f *flakyLedger) UpdateAccount(ctx context.Context, id string, p ledger.AccountPatch) (*ledger.Account, error) {
	if err := f.write(); err != nil {
		return nil, err
	}
	return f.Service.UpdateAccount(ctx, id, p)
}

func (f *flakyLedger) DeleteAccount(ctx context.Context, id string) error {
	if err := f.write(); err != nil {
		return err
	}
	return f.Service.DeleteAccount(ctx, id)
}

func (f *flakyLedger) GetAccounts(ctx context.Context) ([]ledger.Account, error) {
	if f.failReads {
		return nil, errors.New("read failed")
	}
	return f.Service.GetAccounts(ctx)
}

type fixture struct {
	ledger *flakyLedger
	cache  *appstate.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	svc := ledger.NewService(memory.NewStore(), ledger.WithClock(clock.Fixed(now)))
	_, err := svc.AddAccount(ctx, ledger.AccountInput{ID: "a1", Name: "Cash", OpeningBalance: dec("1000")})
	require.NoError(t, err)
	_, err = svc.AddAccount(ctx, ledger.AccountInput{ID: "b1", Name: "Bank", OpeningBalance: dec("500")})
	require.NoError(t, err)
	_, err = svc.AddTransaction(ctx, ledger.TransactionInput{
		ID: "t0", Amount: dec("100"), Type: ledger.TransactionTypeExpense, SourceID: "a1", Category: "Food", Date: "2024-02-03",
	})
	require.NoError(t, err)

	fl := &flakyLedger{Service: svc}
	cache := appstate.NewCache(fl, analytics.NewService(fl), clock.Fixed(now), nil)
	require.NoError(t, cache.Reload(ctx))
	return &fixture{ledger: fl, cache: cache}
}

func accountBalance(t *testing.T, s appstate.State, id string) decimal.Decimal {
	t.Helper()
	for _, a := range s.Accounts {
		if a.ID == id {
			return a.Balance
		}
	}
	t.Fatalf("account %s not in state", id)
	return decimal.Zero
}

func TestCache_ReloadFillsAllViews(t *testing.T) {
	f := newFixture(t)
	s := f.cache.State()

	assert.Len(t, s.Accounts, 2)
	assert.Len(t, s.Transactions, 1)
	assert.Equal(t, clock.Period{Year: 2024, Month: 2}, s.Period)
	assert.True(t, s.Monthly.Expense.Equal(dec("100")))
	require.Len(t, s.Categories, 1)
	assert.Equal(t, "Food", s.Categories[0].Category)
}

func TestCache_AddTransaction_OptimisticThenAuthoritative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var seenDuringPersist appstate.State
	f.ledger.beforeCall = func() { seenDuringPersist = f.cache.State() }

	tx, err := f.cache.AddTransaction(ctx, ledger.TransactionInput{
		Amount: dec("200"), Type: ledger.TransactionTypeExpense, SourceID: "a1", Category: "Rent", Date: "2024-02-05",
	})
	require.NoError(t, err)
	require.NotNil(t, tx)

	// optimistic state was visible before the ledger was called
	require.Len(t, seenDuringPersist.Transactions, 2)
	assert.Equal(t, tx.ID, seenDuringPersist.Transactions[0].ID)
	assert.True(t, accountBalance(t, seenDuringPersist, "a1").Equal(dec("700")))

	s := f.cache.State()
	assert.True(t, accountBalance(t, s, "a1").Equal(dec("700")))
	assert.True(t, s.Monthly.Expense.Equal(dec("300")), "summaries reloaded")
	assert.Len(t, s.Categories, 2)
}

func TestCache_FailedMutationRestoresExactState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := f.cache.State()

	var published []appstate.State
	var mu sync.Mutex
	unsubscribe := f.cache.Subscribe(func(s appstate.State) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, s)
	})
	defer unsubscribe()

	f.ledger.failWrites = true

	_, err := f.cache.AddTransaction(ctx, ledger.TransactionInput{
		Amount: dec("50"), Type: ledger.TransactionTypeIncome, SourceID: "b1", Date: "2024-02-06",
	})
	assert.ErrorIs(t, err, errPersist)
	assert.Equal(t, before, f.cache.State())

	_, err = f.cache.UpdateTransaction(ctx, "t0", ledger.TransactionPatch{Amount: ptr(dec("1"))})
	assert.ErrorIs(t, err, errPersist)
	assert.Equal(t, before, f.cache.State())

	assert.ErrorIs(t, f.cache.DeleteTransaction(ctx, "t0"), errPersist)
	assert.Equal(t, before, f.cache.State())

	_, err = f.cache.AddAccount(ctx, ledger.AccountInput{Name: "Card", Type: ledger.AccountTypeCard})
	assert.ErrorIs(t, err, errPersist)
	assert.Equal(t, before, f.cache.State())

	_, err = f.cache.UpdateAccount(ctx, "a1", ledger.AccountPatch{Name: ptr("Pocket")})
	assert.ErrorIs(t, err, errPersist)
	assert.Equal(t, before, f.cache.State())

	assert.ErrorIs(t, f.cache.DeleteAccount(ctx, "b1"), errPersist)
	assert.Equal(t, before, f.cache.State())

	// every failure published the optimistic guess and then the snapshot
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, published, 12)
	for i := 1; i < len(published); i += 2 {
		assert.Equal(t, before, published[i])
	}
	assert.NotEqual(t, before, published[0])
}

func TestCache_DomainErrorsSurfaceAndLeaveStateAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := f.cache.State()

	_, err := f.cache.AddAccount(ctx, ledger.AccountInput{Name: "cash"})
	assert.ErrorIs(t, err, ledger.ErrDuplicateName)
	assert.Equal(t, before, f.cache.State())

	err = f.cache.DeleteTransaction(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Equal(t, before, f.cache.State())
}

func TestCache_ReloadFailureAfterSuccessKeepsDurableChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.ledger.failReads = true
	err := f.cache.DeleteTransaction(ctx, "t0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reload after delete transaction")

	f.ledger.failReads = false
	txs, err := f.ledger.GetTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)

	require.NoError(t, f.cache.Reload(ctx))
	assert.True(t, accountBalance(t, f.cache.State(), "a1").Equal(dec("1000")))
}

func TestCache_OptimisticViewHonoursFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.LoadTransactions(ctx, ledger.TransactionFilter{AccountID: "b1"}))
	assert.Empty(t, f.cache.State().Transactions)

	var seen appstate.State
	f.ledger.beforeCall = func() { seen = f.cache.State() }

	_, err := f.cache.AddTransaction(ctx, ledger.TransactionInput{
		Amount: dec("5"), Type: ledger.TransactionTypeExpense, SourceID: "a1", Date: "2024-02-07",
	})
	require.NoError(t, err)
	assert.Empty(t, seen.Transactions, "transaction on another account stays hidden")
	assert.True(t, accountBalance(t, seen, "a1").Equal(dec("895")))

	_, err = f.cache.AddTransaction(ctx, ledger.TransactionInput{
		Amount: dec("5"), Type: ledger.TransactionTypeIncome, SourceID: "b1", Date: "2024-02-07",
	})
	require.NoError(t, err)
	assert.Len(t, f.cache.State().Transactions, 1)
}

func TestCache_UnguessableUpdateStillPersists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// t0 belongs to a1, so it is not in this view
	require.NoError(t, f.cache.LoadTransactions(ctx, ledger.TransactionFilter{AccountID: "b1"}))

	_, err := f.cache.UpdateTransaction(ctx, "t0", ledger.TransactionPatch{SourceID: ptr("b1")})
	require.NoError(t, err)

	s := f.cache.State()
	require.Len(t, s.Transactions, 1)
	assert.Equal(t, "t0", s.Transactions[0].ID)
	assert.True(t, accountBalance(t, s, "a1").Equal(dec("1000")))
	assert.True(t, accountBalance(t, s, "b1").Equal(dec("400")))
}

func TestCache_AccountMutations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	added, err := f.cache.AddAccount(ctx, ledger.AccountInput{Name: "Card", Type: ledger.AccountTypeCard, OpeningBalance: dec("10")})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Len(t, f.cache.State().Accounts, 3)

	_, err = f.cache.UpdateAccount(ctx, added.ID, ledger.AccountPatch{Balance: ptr(dec("25"))})
	require.NoError(t, err)
	assert.True(t, accountBalance(t, f.cache.State(), added.ID).Equal(dec("25")))

	_, err = f.cache.AdjustOpeningBalance(ctx, added.ID, dec("0"))
	require.NoError(t, err)
	assert.True(t, accountBalance(t, f.cache.State(), added.ID).IsZero())

	require.NoError(t, f.cache.DeleteAccount(ctx, added.ID))
	assert.Len(t, f.cache.State().Accounts, 2)
}

func TestCache_Stats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.cache.AddTransaction(ctx, ledger.TransactionInput{
		Amount: dec("40"), Type: ledger.TransactionTypeIncome, SourceID: "b1", Date: "2024-02-29",
	})
	require.NoError(t, err)
	_, err = f.cache.AddTransaction(ctx, ledger.TransactionInput{
		Amount: dec("7"), Type: ledger.TransactionTypeExpense, Date: "2024-01-31",
	})
	require.NoError(t, err)

	s := f.cache.Stats()
	assert.Equal(t, 2024, s.Year)
	assert.Equal(t, 2, s.Month)
	assert.True(t, s.TotalBalance.Equal(dec("1440")), s.TotalBalance.String())
	assert.True(t, s.Income.Equal(dec("40")))
	assert.True(t, s.Expense.Equal(dec("100")))
	assert.True(t, s.Savings.Equal(dec("-60")))
}

func TestCache_SetPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.cache.SetPeriod(ctx, clock.Period{Year: 2024, Month: 1}))
	s := f.cache.State()
	assert.Equal(t, 1, s.Monthly.Month)
	assert.True(t, s.Monthly.Expense.IsZero())
	assert.Empty(t, s.Categories)

	assert.ErrorIs(t, f.cache.SetPeriod(ctx, clock.Period{Year: 2024, Month: 0}), analytics.ErrInvalidPeriod)
}

func TestCache_BulkReloads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.cache.Bulk(ctx, "wipe", func(ctx context.Context) error {
		return f.ledger.DeleteTransaction(ctx, "t0")
	})
	require.NoError(t, err)
	assert.Empty(t, f.cache.State().Transactions)

	boom := errors.New("boom")
	assert.ErrorIs(t, f.cache.Bulk(ctx, "fail", func(context.Context) error { return boom }), boom)
}

func TestCache_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	calls := 0
	unsubscribe := f.cache.Subscribe(func(appstate.State) { calls++ })
	require.NoError(t, f.cache.LoadAccounts(ctx))
	unsubscribe()
	require.NoError(t, f.cache.LoadAccounts(ctx))

	assert.Equal(t, 1, calls)
}

func ptr[T any](v T) *T {
	return &v
}
