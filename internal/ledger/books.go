package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Books is the pair of collections one ledger step reads and writes.
//
// Every method leaves the receiver untouched and returns the next state, so a
// caller holding the previous Books still has an exact snapshot.
type Books struct {
	Accounts     []Account
	Transactions []Transaction
}

// Clone copies both collections
func (b Books) Clone() Books {
	out := Books{
		Accounts:     make([]Account, len(b.Accounts)),
		Transactions: make([]Transaction, len(b.Transactions)),
	}
	copy(out.Accounts, b.Accounts)
	copy(out.Transactions, b.Transactions)
	return out
}

// Index builds an AccountIndex over the accounts
func (b Books) Index() *AccountIndex {
	return NewAccountIndex(b.Accounts)
}

// Account returns the account with id
func (b Books) Account(id string) (Account, bool) {
	if i, ok := b.Index().ByID(id); ok {
		return b.Accounts[i], true
	}
	return Account{}, false
}

// Transaction returns the transaction with id
func (b Books) Transaction(id string) (Transaction, bool) {
	if i := b.findTransaction(id); i >= 0 {
		return b.Transactions[i], true
	}
	return Transaction{}, false
}

// Linkage classifies t against the current account list
func (b Books) Linkage(t Transaction) LinkState {
	if t.SourceID == "" {
		return LinkUnlinked
	}
	if _, ok := b.Account(t.SourceID); ok {
		return LinkLinked
	}
	return LinkOrphaned
}

// AddTransaction validates in, resolves its account and inserts it at the head
// of the list. An id is generated when in.ID is empty. An unresolvable account
// leaves the transaction unlinked.
func (b Books) AddTransaction(in TransactionInput) (Books, Transaction, error) {
	if in.Amount.IsZero() {
		return b, Transaction{}, fmt.Errorf("amount: %w", ErrMissingField)
	}
	if in.Type == "" {
		return b, Transaction{}, fmt.Errorf("type: %w", ErrMissingField)
	}
	if in.Date == "" {
		return b, Transaction{}, fmt.Errorf("date: %w", ErrMissingField)
	}

	t := Transaction{
		ID:       in.ID,
		Amount:   in.Amount,
		Type:     in.Type,
		Category: in.Category,
		Date:     in.Date,
		Note:     in.Note,
		Source:   strings.TrimSpace(in.Source),
	}
	if t.ID == "" {
		t.ID = NewID()
	}
	t.SourceID, t.Source = b.resolveSource(in.SourceID, t.Source)

	if err := t.Validate(); err != nil {
		return b, Transaction{}, err
	}
	if b.findTransaction(t.ID) >= 0 {
		return b, Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, ErrDuplicateID)
	}

	next := b.Clone()
	next.Transactions = append([]Transaction{t}, b.Transactions...)
	next.applyEffect(t.SourceID, Effect(t))
	return next, t, nil
}

// UpdateTransaction merges patch into the stored transaction. When the
// account, amount or type changes, the stored record's effect is reversed on
// its account and the merged record's effect applied to the new one.
func (b Books) UpdateTransaction(id string, patch TransactionPatch) (Books, Transaction, error) {
	i := b.findTransaction(id)
	if i < 0 {
		return b, Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	old := b.Transactions[i]

	merged := old
	if patch.Amount != nil {
		merged.Amount = *patch.Amount
	}
	if patch.Type != nil {
		merged.Type = *patch.Type
	}
	if patch.Category != nil {
		merged.Category = *patch.Category
	}
	if patch.Date != nil {
		merged.Date = *patch.Date
	}
	if patch.Note != nil {
		merged.Note = *patch.Note
	}
	switch {
	case patch.SourceID != nil:
		source := ""
		if patch.Source != nil {
			source = strings.TrimSpace(*patch.Source)
		}
		merged.SourceID, merged.Source = b.resolveSource(*patch.SourceID, source)
	case patch.Source != nil:
		merged.SourceID, merged.Source = b.resolveSource("", strings.TrimSpace(*patch.Source))
	}

	if err := patch.validate(&merged); err != nil {
		return b, Transaction{}, err
	}

	next := b.Clone()
	next.Transactions[i] = merged
	if merged.SourceID != old.SourceID || !merged.Amount.Equal(old.Amount) || merged.Type != old.Type {
		next.applyEffect(old.SourceID, Effect(old).Neg())
		next.applyEffect(merged.SourceID, Effect(merged))
	}
	return next, merged, nil
}

// DeleteTransaction reverses the transaction's effect and removes it
func (b Books) DeleteTransaction(id string) (Books, Transaction, error) {
	i := b.findTransaction(id)
	if i < 0 {
		return b, Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	old := b.Transactions[i]

	next := b.Clone()
	next.Transactions = append(next.Transactions[:i], next.Transactions[i+1:]...)
	next.applyEffect(old.SourceID, Effect(old).Neg())
	return next, old, nil
}

// AddAccount appends a new account. Its balance starts at the opening balance
// plus the effect of any stored transaction already referencing its id.
func (b Books) AddAccount(in AccountInput, now time.Time) (Books, Account, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return b, Account{}, fmt.Errorf("name: %w", ErrMissingField)
	}
	accountType := in.Type
	if accountType == "" {
		accountType = AccountTypeCash
	}
	if !accountType.IsValid() {
		return b, Account{}, fmt.Errorf("account %w %q", ErrInvalidType, accountType)
	}
	if _, ok := b.Index().ByName(name); ok {
		return b, Account{}, fmt.Errorf("%q: %w", name, ErrDuplicateName)
	}

	a := Account{
		ID:             in.ID,
		Name:           name,
		Type:           accountType,
		OpeningBalance: in.OpeningBalance,
	}
	if a.ID == "" {
		a.ID = NewID()
	} else if _, ok := b.Account(a.ID); ok {
		return b, Account{}, fmt.Errorf("account %s: %w", a.ID, ErrDuplicateID)
	}
	if !now.IsZero() {
		created := now.UTC()
		a.CreatedAt = &created
	}
	a.Balance = a.OpeningBalance.Add(b.effectsOn(a.ID))

	next := b.Clone()
	next.Accounts = append(next.Accounts, a)
	return next, a, nil
}

// UpdateAccount merges patch into the account. A Balance patch moves the
// opening balance by the same amount.
func (b Books) UpdateAccount(id string, patch AccountPatch) (Books, Account, error) {
	i := b.findAccount(id)
	if i < 0 {
		return b, Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	a := b.Accounts[i]

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return b, Account{}, fmt.Errorf("name: %w", ErrMissingField)
		}
		if j, ok := b.Index().ByName(name); ok && b.Accounts[j].ID != id {
			return b, Account{}, fmt.Errorf("%q: %w", name, ErrDuplicateName)
		}
		a.Name = name
	}
	if patch.Type != nil {
		if !patch.Type.IsValid() {
			return b, Account{}, fmt.Errorf("account %w %q", ErrInvalidType, *patch.Type)
		}
		a.Type = *patch.Type
	}
	if patch.Balance != nil {
		a.Balance = *patch.Balance
		a.OpeningBalance = a.Balance.Sub(b.effectsOn(id))
	}

	next := b.Clone()
	next.Accounts[i] = a
	return next, a, nil
}

// AdjustOpeningBalance replaces the opening balance and recomputes the balance
func (b Books) AdjustOpeningBalance(id string, opening decimal.Decimal) (Books, Account, error) {
	i := b.findAccount(id)
	if i < 0 {
		return b, Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}

	a := b.Accounts[i]
	a.OpeningBalance = opening
	a.Balance = opening.Add(b.effectsOn(id))

	next := b.Clone()
	next.Accounts[i] = a
	return next, a, nil
}

// DeleteAccount removes the account. Transactions referencing it are kept and
// become orphaned.
func (b Books) DeleteAccount(id string) (Books, Account, error) {
	i := b.findAccount(id)
	if i < 0 {
		return b, Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	removed := b.Accounts[i]

	next := b.Clone()
	next.Accounts = append(next.Accounts[:i], next.Accounts[i+1:]...)
	return next, removed, nil
}

// resolveSource picks the canonical account reference. An explicit id is kept
// as given; otherwise the legacy name is looked up. The returned name is the
// linked account's name when the input carried none.
func (b Books) resolveSource(sourceID, name string) (string, string) {
	if sourceID != "" {
		if name == "" {
			if a, ok := b.Account(sourceID); ok {
				name = a.Name
			}
		}
		return sourceID, name
	}
	if name == "" {
		return "", ""
	}
	if i, ok := b.Index().ByName(name); ok {
		return b.Accounts[i].ID, name
	}
	return "", name
}

// applyEffect adds delta to the account with id. It must only be called on a
// Books whose Accounts slice is already private to the caller.
func (b *Books) applyEffect(id string, delta decimal.Decimal) {
	if id == "" {
		return
	}
	if i := b.findAccount(id); i >= 0 {
		b.Accounts[i].Balance = b.Accounts[i].Balance.Add(delta)
	}
}

func (b Books) effectsOn(id string) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range b.Transactions {
		if t.SourceID == id {
			sum = sum.Add(Effect(t))
		}
	}
	return sum
}

func (b Books) findTransaction(id string) int {
	for i, t := range b.Transactions {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (b Books) findAccount(id string) int {
	for i, a := range b.Accounts {
		if a.ID == id {
			return i
		}
	}
	return -1
}
