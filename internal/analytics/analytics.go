// Package analytics derives monthly and per-category summaries from the
// transaction collection. Everything here is a pure function of stored state.
package analytics

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pocketledger/internal/ledger"
)

// ErrInvalidPeriod is returned for a month outside 1..12
var ErrInvalidPeriod = errors.New("invalid period")

// Uncategorized labels expenses recorded without a category
const Uncategorized = "Uncategorized"

// MonthlyStats are the income and expense totals of one month
type MonthlyStats struct {
	Year    int             `json:"year"`
	Month   int             `json:"month"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Savings decimal.Decimal `json:"savings"`
}

// CategoryTotal is the expense total of one category
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// MonthBounds returns the inclusive date window of a month. The upper bound
// is always day 31; as dates compare as strings this still covers the last
// day of every shorter month.
func MonthBounds(year, month int) (string, string) {
	prefix := fmt.Sprintf("%04d-%02d", year, month)
	return prefix + "-01", prefix + "-31"
}

func validPeriod(year, month int) error {
	if month < 1 || month > 12 || year < 1 {
		return fmt.Errorf("%w: %04d-%02d", ErrInvalidPeriod, year, month)
	}
	return nil
}

func inMonth(t ledger.Transaction, start, end string) bool {
	return t.Date >= start && t.Date <= end
}

// Monthly sums income and expense for the month
func Monthly(txs []ledger.Transaction, year, month int) MonthlyStats {
	start, end := MonthBounds(year, month)
	stats := MonthlyStats{Year: year, Month: month}

	for _, t := range txs {
		if !inMonth(t, start, end) {
			continue
		}
		switch t.Type {
		case ledger.TransactionTypeIncome:
			stats.Income = stats.Income.Add(t.Amount)
		case ledger.TransactionTypeExpense:
			stats.Expense = stats.Expense.Add(t.Amount)
		}
	}
	stats.Savings = stats.Income.Sub(stats.Expense)
	return stats
}

// ByCategory sums expenses per category for the month, largest first.
// Equal totals are ordered by name.
func ByCategory(txs []ledger.Transaction, year, month int) []CategoryTotal {
	start, end := MonthBounds(year, month)
	totals := make(map[string]decimal.Decimal)

	for _, t := range txs {
		if t.Type != ledger.TransactionTypeExpense || !inMonth(t, start, end) {
			continue
		}
		category := t.Category
		if category == "" {
			category = Uncategorized
		}
		totals[category] = totals[category].Add(t.Amount)
	}

	out := make([]CategoryTotal, 0, len(totals))
	for category, total := range totals {
		out = append(out, CategoryTotal{Category: category, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}
