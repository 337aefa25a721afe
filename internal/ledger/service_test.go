package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pocketledger/internal/infra/memory"
	"github.com/kislikjeka/pocketledger/internal/kv"
	"github.com/kislikjeka/pocketledger/internal/ledger"
	"github.com/kislikjeka/pocketledger/pkg/clock"
)

// failingStore fails Update on demand
type failingStore struct {
	*memory.Store
	failUpdate bool
}

func (s *failingStore) Update(ctx context.Context, fn func(tx kv.Tx) error) error {
	if s.failUpdate {
		return errors.New("disk full")
	}
	return s.Store.Update(ctx, fn)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ledger.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e ledger.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []ledger.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ledger.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

var fixedNow = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func newService(t *testing.T, opts ...ledger.Option) (*ledger.Service, *failingStore) {
	t.Helper()
	store := &failingStore{Store: memory.NewStore()}
	opts = append([]ledger.Option{ledger.WithClock(clock.Fixed(fixedNow))}, opts...)
	return ledger.NewService(store, opts...), store
}

func requireInvariant(t *testing.T, svc *ledger.Service) {
	t.Helper()
	discrepancies, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Empty(t, discrepancies)
}

func TestService_Scenario_AddUpdateDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.AddAccount(ctx, ledger.AccountInput{ID: "a1", Name: "Cash", OpeningBalance: dec("1000")})
	require.NoError(t, err)

	tx, err := svc.AddTransaction(ctx, ledger.TransactionInput{
		Amount: dec("200"), Type: ledger.TransactionTypeExpense, SourceID: "a1", Category: "Food", Date: "2024-01-05",
	})
	require.NoError(t, err)

	txs, err := svc.GetTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	a1, err := svc.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a1.Balance.Equal(dec("800")), "got %s", a1.Balance)

	_, err = svc.UpdateTransaction(ctx, tx.ID, ledger.TransactionPatch{
		Amount: ptr(dec("50")),
		Type:   ptr(ledger.TransactionTypeExpense),
	})
	require.NoError(t, err)
	a1, err = svc.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a1.Balance.Equal(dec("950")), "got %s", a1.Balance)

	require.NoError(t, svc.DeleteTransaction(ctx, tx.ID))
	a1, err = svc.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a1.Balance.Equal(dec("1000")), "got %s", a1.Balance)

	requireInvariant(t, svc)
}

func TestService_InvariantHoldsAcrossRandomOperations(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	rng := rand.New(rand.NewSource(42))

	accountIDs := []string{"a", "b", "c"}
	for i, id := range accountIDs {
		_, err := svc.AddAccount(ctx, ledger.AccountInput{ID: id, Name: fmt.Sprintf("Account %d", i), OpeningBalance: dec("100")})
		require.NoError(t, err)
	}
	// "" leaves a transaction unlinked, "ghost" never resolves
	sources := append([]string{"", "ghost"}, accountIDs...)
	types := []ledger.TransactionType{ledger.TransactionTypeIncome, ledger.TransactionTypeExpense}

	var live []string
	for step := 0; step < 300; step++ {
		amount := dec(fmt.Sprintf("%d.%02d", rng.Intn(500)+1, rng.Intn(100)))
		switch op := rng.Intn(3); {
		case op == 0 || len(live) == 0:
			tx, err := svc.AddTransaction(ctx, ledger.TransactionInput{
				Amount:   amount,
				Type:     types[rng.Intn(2)],
				SourceID: sources[rng.Intn(len(sources))],
				Date:     fmt.Sprintf("2024-%02d-%02d", rng.Intn(12)+1, rng.Intn(28)+1),
			})
			require.NoError(t, err)
			live = append(live, tx.ID)
		case op == 1:
			id := live[rng.Intn(len(live))]
			_, err := svc.UpdateTransaction(ctx, id, ledger.TransactionPatch{
				Amount:   ptr(amount),
				Type:     ptr(types[rng.Intn(2)]),
				SourceID: ptr(sources[rng.Intn(len(sources))]),
			})
			require.NoError(t, err)
		default:
			i := rng.Intn(len(live))
			require.NoError(t, svc.DeleteTransaction(ctx, live[i]))
			live = append(live[:i], live[i+1:]...)
		}
		requireInvariant(t, svc)
	}
}

func TestService_DuplicateName(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.AddAccount(ctx, ledger.AccountInput{Name: "GPay", Type: ledger.AccountTypeWallet})
	require.NoError(t, err)

	_, err = svc.AddAccount(ctx, ledger.AccountInput{Name: "Gpay", Type: ledger.AccountTypeWallet})
	assert.ErrorIs(t, err, ledger.ErrDuplicateName)

	accounts, err := svc.GetAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestService_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.UpdateTransaction(ctx, "nope", ledger.TransactionPatch{})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteTransaction(ctx, "nope"), ledger.ErrNotFound)
	_, err = svc.UpdateAccount(ctx, "nope", ledger.AccountPatch{})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteAccount(ctx, "nope"), ledger.ErrNotFound)
	_, err = svc.GetTransaction(ctx, "nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = svc.GetAccount(ctx, "nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestService_StoreFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	_, err := svc.AddAccount(ctx, ledger.AccountInput{ID: "a1", Name: "Cash", OpeningBalance: dec("10")})
	require.NoError(t, err)

	store.failUpdate = true
	_, err = svc.AddTransaction(ctx, ledger.TransactionInput{Amount: dec("5"), Type: ledger.TransactionTypeExpense, SourceID: "a1", Date: "2024-01-01"})
	assert.ErrorIs(t, err, ledger.ErrStoreFailure)
	assert.Contains(t, err.Error(), "disk full")

	store.failUpdate = false
	txs, err := svc.GetTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
	a1, err := svc.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a1.Balance.Equal(dec("10")))
}

func TestService_CorruptCollectionIsStoreFailure(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	require.NoError(t, store.Set(ctx, ledger.KeyAccounts, []byte(`{"not":"an array"}`)))

	_, err := svc.GetAccounts(ctx)
	assert.ErrorIs(t, err, ledger.ErrStoreFailure)

	_, err = svc.AddAccount(ctx, ledger.AccountInput{Name: "Cash"})
	assert.ErrorIs(t, err, ledger.ErrStoreFailure)
}

func TestService_PersistsJSONLayout(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	_, err := svc.AddAccount(ctx, ledger.AccountInput{ID: "a1", Name: "Cash", OpeningBalance: dec("1000")})
	require.NoError(t, err)
	_, err = svc.AddTransaction(ctx, ledger.TransactionInput{
		ID: "t1", Amount: dec("200"), Type: ledger.TransactionTypeExpense, SourceID: "a1", Category: "Food", Date: "2024-01-05",
	})
	require.NoError(t, err)

	raw, err := store.Get(ctx, ledger.KeyTransactions)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"t1","amount":200,"type":"expense","category":"Food","sourceId":"a1","source":"Cash","date":"2024-01-05","note":""}]`, string(raw))

	raw, err = store.Get(ctx, ledger.KeyAccounts)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a1","name":"Cash","type":"cash","balance":800,"openingBalance":1000,"createdAt":"2024-01-15T09:30:00Z"}]`, string(raw))
}

func TestService_GetTransactions_Filters(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	_, err := svc.AddAccount(ctx, ledger.AccountInput{ID: "a1", Name: "Cash"})
	require.NoError(t, err)
	_, err = svc.AddAccount(ctx, ledger.AccountInput{ID: "b1", Name: "Bank"})
	require.NoError(t, err)

	add := func(id, typ, category, source, date string) {
		_, err := svc.AddTransaction(ctx, ledger.TransactionInput{
			ID: id, Amount: dec("1"), Type: ledger.TransactionType(typ), Category: category, SourceID: source, Date: date,
		})
		require.NoError(t, err)
	}
	add("t1", "expense", "Food", "a1", "2024-01-05")
	add("t2", "income", "Salary", "b1", "2024-01-01")
	add("t3", "expense", "Food", "b1", "2024-02-10")
	add("t4", "expense", "Rent", "a1", "2023-12-31")

	// a legacy record that never got linked
	books, err := svc.Books(ctx)
	require.NoError(t, err)
	books.Transactions = append(books.Transactions, ledger.Transaction{
		ID: "legacy", Amount: dec("3"), Type: ledger.TransactionTypeExpense, Source: "cash", Date: "2024-01-20",
	})
	require.NoError(t, ledger.WriteBooks(ctx, store, books))

	ids := func(f ledger.TransactionFilter) []string {
		txs, err := svc.GetTransactions(ctx, f)
		require.NoError(t, err)
		out := make([]string, len(txs))
		for i, tx := range txs {
			out[i] = tx.ID
		}
		return out
	}

	assert.Equal(t, []string{"t4", "t3", "t2", "t1", "legacy"}, ids(ledger.TransactionFilter{}))
	assert.Equal(t, []string{"t4", "t3", "t1", "legacy"}, ids(ledger.TransactionFilter{Type: ledger.TransactionTypeExpense}))
	assert.Equal(t, []string{"t3", "t1"}, ids(ledger.TransactionFilter{Category: "Food"}))
	assert.Equal(t, []string{"t4", "t1"}, ids(ledger.TransactionFilter{AccountID: "a1"}))
	assert.Equal(t, []string{"t4", "t1", "legacy"}, ids(ledger.TransactionFilter{AccountName: "CASH"}))
	assert.Equal(t, []string{"t3", "t2", "t1", "legacy"}, ids(ledger.TransactionFilter{StartDate: "2024-01-01"}))
	assert.Equal(t, []string{"t2", "t1", "legacy"}, ids(ledger.TransactionFilter{StartDate: "2024-01-01", EndDate: "2024-01-31"}))
	assert.Equal(t, []string{"t3", "legacy", "t1", "t2", "t4"}, ids(ledger.TransactionFilter{SortByDate: true}))
	assert.Equal(t, []string{"t1"}, ids(ledger.TransactionFilter{Type: ledger.TransactionTypeExpense, Category: "Food", AccountID: "a1", StartDate: "2024-01-01"}))
}

func TestService_HasSufficientFunds(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.AddAccount(ctx, ledger.AccountInput{ID: "a1", Name: "Cash", OpeningBalance: dec("50")})
	require.NoError(t, err)

	ok, err := svc.HasSufficientFunds(ctx, "a1", dec("50"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasSufficientFunds(ctx, "a1", dec("50.01"))
	require.NoError(t, err)
	assert.False(t, ok)

	// insufficiency is reported, never enforced
	_, err = svc.AddTransaction(ctx, ledger.TransactionInput{Amount: dec("80"), Type: ledger.TransactionTypeExpense, SourceID: "a1", Date: "2024-01-01"})
	require.NoError(t, err)
	a1, err := svc.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a1.Balance.Equal(dec("-30")))

	_, err = svc.HasSufficientFunds(ctx, "missing", dec("1"))
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestService_Reconcile_DetectsTampering(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	_, err := svc.AddAccount(ctx, ledger.AccountInput{ID: "a1", Name: "Cash", OpeningBalance: dec("50")})
	require.NoError(t, err)
	requireInvariant(t, svc)

	require.NoError(t, store.Set(ctx, ledger.KeyAccounts,
		[]byte(`[{"id":"a1","name":"Cash","type":"cash","balance":70,"openingBalance":50}]`)))

	discrepancies, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, discrepancies, 1)
	assert.True(t, discrepancies[0].Difference.Equal(dec("20")))

	// the first-class correction brings the account back in line
	_, err = svc.AdjustOpeningBalance(ctx, "a1", dec("50"))
	require.NoError(t, err)
	requireInvariant(t, svc)
}

func TestService_UpdateAccountBalanceKeepsInvariant(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.AddAccount(ctx, ledger.AccountInput{ID: "a1", Name: "Cash", OpeningBalance: dec("50")})
	require.NoError(t, err)
	_, err = svc.AddTransaction(ctx, ledger.TransactionInput{Amount: dec("20"), Type: ledger.TransactionTypeIncome, SourceID: "a1", Date: "2024-01-01"})
	require.NoError(t, err)

	a, err := svc.UpdateAccount(ctx, "a1", ledger.AccountPatch{Balance: ptr(dec("5"))})
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(dec("5")))
	assert.True(t, a.OpeningBalance.Equal(dec("-15")))
	requireInvariant(t, svc)
}

func TestService_PublishesEvents(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc, _ := newService(t, ledger.WithPublisher(pub))

	_, err := svc.AddAccount(ctx, ledger.AccountInput{ID: "a1", Name: "Cash"})
	require.NoError(t, err)
	tx, err := svc.AddTransaction(ctx, ledger.TransactionInput{Amount: dec("1"), Type: ledger.TransactionTypeIncome, SourceID: "a1", Date: "2024-01-01"})
	require.NoError(t, err)
	_, err = svc.UpdateTransaction(ctx, tx.ID, ledger.TransactionPatch{Note: ptr("x")})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTransaction(ctx, tx.ID))
	_, err = svc.UpdateAccount(ctx, "a1", ledger.AccountPatch{Name: ptr("Wallet")})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteAccount(ctx, "a1"))

	// rejected steps publish nothing
	_, err = svc.UpdateAccount(ctx, "a1", ledger.AccountPatch{})
	require.Error(t, err)

	assert.Equal(t, []ledger.EventType{
		ledger.EventAccountAdded,
		ledger.EventTransactionAdded,
		ledger.EventTransactionUpdated,
		ledger.EventTransactionDeleted,
		ledger.EventAccountUpdated,
		ledger.EventAccountDeleted,
	}, pub.types())
	assert.Equal(t, fixedNow, pub.events[0].OccurredAt)
	require.NotNil(t, pub.events[1].Transaction)
	assert.Equal(t, tx.ID, pub.events[1].Transaction.ID)
}

func TestService_PublishFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, _ := newService(t, ledger.WithPublisher(pub))

	_, err := svc.AddAccount(ctx, ledger.AccountInput{Name: "Cash"})
	assert.NoError(t, err)
}

func TestService_ConcurrentAddsSerialize(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.AddAccount(ctx, ledger.AccountInput{ID: "a1", Name: "Cash"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddTransaction(ctx, ledger.TransactionInput{Amount: dec("1"), Type: ledger.TransactionTypeIncome, SourceID: "a1", Date: "2024-01-01"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	a1, err := svc.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a1.Balance.Equal(dec("20")))
	requireInvariant(t, svc)
}
