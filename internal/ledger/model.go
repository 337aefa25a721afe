package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pocketledger/pkg/clock"
)

// Store keys for the two ledger collections
const (
	KeyAccounts     = "accounts"
	KeyTransactions = "transactions"
)

func init() {
	// Stored collections and API payloads carry amounts as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// AccountType groups accounts for display
type AccountType string

const (
	AccountTypeCash    AccountType = "cash"
	AccountTypeBank    AccountType = "bank"
	AccountTypeWallet  AccountType = "wallet"
	AccountTypeCard    AccountType = "card"
	AccountTypeSavings AccountType = "savings"
	AccountTypeCustom  AccountType = "custom"
)

// AllAccountTypes returns every supported account type
func AllAccountTypes() []AccountType {
	return []AccountType{
		AccountTypeCash,
		AccountTypeBank,
		AccountTypeWallet,
		AccountTypeCard,
		AccountTypeSavings,
		AccountTypeCustom,
	}
}

// IsValid checks if the account type is one of the supported types
func (t AccountType) IsValid() bool {
	for _, v := range AllAccountTypes() {
		if t == v {
			return true
		}
	}
	return false
}

// TransactionType is the direction of a transaction
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// IsValid checks the transaction type
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// Account is a named money source with a running balance.
//
// Balance always equals OpeningBalance plus the effects of every transaction
// whose SourceID is the account's ID.
type Account struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Type           AccountType     `json:"type"`
	Balance        decimal.Decimal `json:"balance"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	CreatedAt      *time.Time      `json:"createdAt,omitempty"`
}

// Transaction is a dated income or expense against at most one account
type Transaction struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Type     TransactionType `json:"type"`
	Category string          `json:"category"`
	SourceID string          `json:"sourceId"`
	// Source is the account name as it was when the transaction was recorded.
	// Only migration and input resolution read it.
	Source string `json:"source,omitempty"`
	Date   string `json:"date"`
	Note   string `json:"note"`
}

// Validate checks a transaction before it is stored
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id: %w", ErrMissingField)
	}
	if err := t.validateAmount(); err != nil {
		return err
	}
	if err := t.validateType(); err != nil {
		return err
	}
	return t.validateDate()
}

func (t *Transaction) validateAmount() error {
	if !t.Amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, t.Amount.String())
	}
	return nil
}

func (t *Transaction) validateType() error {
	if !t.Type.IsValid() {
		return fmt.Errorf("transaction %w %q", ErrInvalidType, t.Type)
	}
	return nil
}

func (t *Transaction) validateDate() error {
	if _, err := time.Parse(clock.DateLayout, t.Date); err != nil {
		return fmt.Errorf("%w: got %q", ErrInvalidDate, t.Date)
	}
	return nil
}

// Effect is the signed balance change the transaction contributes
func Effect(t Transaction) decimal.Decimal {
	if t.Type == TransactionTypeIncome {
		return t.Amount
	}
	return t.Amount.Neg()
}

// LinkState describes how a transaction relates to the account list
type LinkState int

const (
	// LinkUnlinked means the transaction never referenced an account
	LinkUnlinked LinkState = iota
	// LinkLinked means the referenced account exists and carries the effect
	LinkLinked
	// LinkOrphaned means the referenced account has been deleted
	LinkOrphaned
)

func (s LinkState) String() string {
	switch s {
	case LinkLinked:
		return "linked"
	case LinkOrphaned:
		return "orphaned"
	default:
		return "unlinked"
	}
}

// NewID returns a fresh identifier
func NewID() string {
	return uuid.NewString()
}

// NormalizeName is the key under which account names are compared
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// TransactionInput carries the fields of a new transaction. SourceID wins over
// the legacy Source name when both are set.
type TransactionInput struct {
	ID       string
	Amount   decimal.Decimal
	Type     TransactionType
	Category string
	SourceID string
	Source   string
	Date     string
	Note     string
}

// TransactionPatch lists the fields to overwrite; nil fields are kept.
// An empty SourceID unlinks the transaction.
type TransactionPatch struct {
	Amount   *decimal.Decimal
	Type     *TransactionType
	Category *string
	SourceID *string
	Source   *string
	Date     *string
	Note     *string
}

// validate checks only the fields the patch sets, so a stored record that
// predates current validation can still take unrelated edits.
func (p TransactionPatch) validate(merged *Transaction) error {
	if p.Amount != nil {
		if err := merged.validateAmount(); err != nil {
			return err
		}
	}
	if p.Type != nil {
		if err := merged.validateType(); err != nil {
			return err
		}
	}
	if p.Date != nil {
		if err := merged.validateDate(); err != nil {
			return err
		}
	}
	return nil
}

// AccountInput carries the fields of a new account
type AccountInput struct {
	ID             string
	Name           string
	Type           AccountType
	OpeningBalance decimal.Decimal
}

// AccountPatch lists the account fields to overwrite. Setting Balance
// re-bases OpeningBalance so the invariant keeps holding.
type AccountPatch struct {
	Name    *string
	Type    *AccountType
	Balance *decimal.Decimal
}
