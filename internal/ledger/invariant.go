package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pocketledger/pkg/money"
)

// Discrepancy is an account whose stored balance disagrees with its history
type Discrepancy struct {
	AccountID string          `json:"accountId"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Expected  decimal.Decimal `json:"expected"`
	// Difference is Balance minus Expected
	Difference decimal.Decimal `json:"difference"`
}

// CheckInvariant returns every account whose balance is not its opening
// balance plus the effects of the transactions referencing it. Unlinked and
// orphaned transactions contribute to no account.
func CheckInvariant(accounts []Account, transactions []Transaction) []Discrepancy {
	effects := make(map[string][]decimal.Decimal)
	for _, t := range transactions {
		if t.SourceID != "" {
			effects[t.SourceID] = append(effects[t.SourceID], Effect(t))
		}
	}

	var out []Discrepancy
	for _, a := range accounts {
		expected := a.OpeningBalance.Add(money.Sum(effects[a.ID]...))
		if !a.Balance.Equal(expected) {
			out = append(out, Discrepancy{
				AccountID:  a.ID,
				Name:       a.Name,
				Balance:    a.Balance,
				Expected:   expected,
				Difference: a.Balance.Sub(expected),
			})
		}
	}
	return out
}

// Check runs CheckInvariant over the books
func (b Books) Check() []Discrepancy {
	return CheckInvariant(b.Accounts, b.Transactions)
}
