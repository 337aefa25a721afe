package ledger

import "sort"

// TransactionFilter selects transactions. Every set field must match; the
// zero filter selects everything. Dates compare as ISO strings, both bounds
// inclusive.
type TransactionFilter struct {
	Type     TransactionType
	Category string
	// AccountID takes precedence over AccountName
	AccountID   string
	AccountName string
	StartDate   string
	EndDate     string
	// SortByDate orders newest date first. Otherwise the stored order is kept.
	SortByDate bool
}

// Filter returns the matching transactions in a new slice
func (b Books) Filter(f TransactionFilter) []Transaction {
	accountID := f.AccountID
	legacyName := ""
	if accountID == "" && f.AccountName != "" {
		legacyName = NormalizeName(f.AccountName)
		if i, ok := b.Index().ByName(f.AccountName); ok {
			accountID = b.Accounts[i].ID
		}
	}

	out := make([]Transaction, 0, len(b.Transactions))
	for _, t := range b.Transactions {
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.StartDate != "" && t.Date < f.StartDate {
			continue
		}
		if f.EndDate != "" && t.Date > f.EndDate {
			continue
		}
		if accountID != "" || legacyName != "" {
			byID := accountID != "" && t.SourceID == accountID
			byName := legacyName != "" && t.SourceID == "" && NormalizeName(t.Source) == legacyName
			if !byID && !byName {
				continue
			}
		}
		out = append(out, t)
	}

	if f.SortByDate {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	}
	return out
}
