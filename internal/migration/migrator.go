// Package migration repairs legacy ledger collections before the ledger
// service trusts them.
//
// It works on raw JSON records so that fields it does not know about survive
// untouched. Records the ledger could not decode are moved out of the live
// collections into quarantine keys, so a single bad entry never makes the
// whole ledger unreadable. Every pass writes only when it changed something;
// a converged store is left alone.
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pocketledger/internal/kv"
	"github.com/kislikjeka/pocketledger/internal/ledger"
	"github.com/kislikjeka/pocketledger/pkg/clock"
	"github.com/kislikjeka/pocketledger/pkg/logger"
)

// Report summarizes one run
type Report struct {
	AccountsRead              int `json:"accountsRead"`
	TransactionsRead          int `json:"transactionsRead"`
	DuplicateAccountsDropped  int `json:"duplicateAccountsDropped"`
	AccountIDsAssigned        int `json:"accountIdsAssigned"`
	SourcesLinked             int `json:"sourcesLinked"`
	UnresolvedSources         int `json:"unresolvedSources"`
	OpeningBalancesBackfilled int `json:"openingBalancesBackfilled"`
	DatesNormalized           int `json:"datesNormalized"`
	FieldsRepaired            int `json:"fieldsRepaired"`
	RecordsQuarantined        int `json:"recordsQuarantined"`

	AccountsWritten     bool `json:"accountsWritten"`
	TransactionsWritten bool `json:"transactionsWritten"`
	QuarantineWritten   bool `json:"quarantineWritten"`
}

// Changed reports whether the run wrote anything
func (r Report) Changed() bool {
	return r.AccountsWritten || r.TransactionsWritten || r.QuarantineWritten
}

// Migrator runs the repair passes
type Migrator struct {
	store  kv.Store
	logger *logger.Logger
}

// NewMigrator creates a migrator over store
func NewMigrator(store kv.Store, log *logger.Logger) *Migrator {
	return &Migrator{store: store, logger: logger.OrNop(log).WithComponent(logger.ComponentMigration)}
}

// Run repairs accounts, then transactions, then account balances, all in one
// store update. Records the ledger cannot read are logged and quarantined.
func (m *Migrator) Run(ctx context.Context) (Report, error) {
	var report Report

	err := m.store.Update(ctx, func(tx kv.Tx) error {
		report = Report{}

		accounts, err := readRecords(ctx, tx, ledger.KeyAccounts)
		if err != nil {
			return err
		}
		transactions, err := readRecords(ctx, tx, ledger.KeyTransactions)
		if err != nil {
			return err
		}
		report.AccountsRead = len(accounts)
		report.TransactionsRead = len(transactions)

		var q quarantine
		accounts, accountsChanged := m.migrateAccounts(accounts, &q, &report)
		transactions, txChanged := m.migrateTransactions(accounts, transactions, &q, &report)
		transactions, txRepaired := m.sanitizeTransactions(transactions, &q, &report)
		effects := effectsByAccount(transactions)
		accounts, accountsRepaired := m.repairBalances(accounts, effects, &report)
		accounts, backfilled := m.backfillOpeningBalances(accounts, effects, &report)
		accounts, accountsDropped := m.sanitizeAccounts(accounts, &q, &report)

		if accountsChanged || accountsRepaired || backfilled || accountsDropped {
			if err := writeRecords(ctx, tx, ledger.KeyAccounts, accounts); err != nil {
				return err
			}
			report.AccountsWritten = true
		}
		if txChanged || txRepaired {
			if err := writeRecords(ctx, tx, ledger.KeyTransactions, transactions); err != nil {
				return err
			}
			report.TransactionsWritten = true
		}
		if !q.empty() {
			if err := q.flush(ctx, tx); err != nil {
				return err
			}
			report.QuarantineWritten = true
		}
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("failed to migrate ledger: %w: %w", ledger.ErrStoreFailure, err)
	}

	if report.Changed() {
		m.logger.WithContext(ctx).Info("ledger migrated",
			"duplicates_dropped", report.DuplicateAccountsDropped,
			"ids_assigned", report.AccountIDsAssigned,
			"sources_linked", report.SourcesLinked,
			"unresolved_sources", report.UnresolvedSources,
			"opening_balances_backfilled", report.OpeningBalancesBackfilled,
			"dates_normalized", report.DatesNormalized,
			"fields_repaired", report.FieldsRepaired,
			"records_quarantined", report.RecordsQuarantined,
		)
	} else {
		m.logger.WithContext(ctx).Debug("ledger already migrated")
	}
	return report, nil
}

// migrateAccounts drops later duplicates by normalized name and gives every
// kept account a unique non-empty id
func (m *Migrator) migrateAccounts(records []record, q *quarantine, report *Report) ([]record, bool) {
	changed := false
	seenNames := make(map[string]bool)
	seenIDs := make(map[string]bool)
	out := make([]record, 0, len(records))

	for i, rec := range records {
		if rec.fields == nil {
			m.quarantineRecord(q, ledger.KeyAccounts, i, rec, "not a JSON object", report)
			changed = true
			continue
		}

		name := rec.str("name")
		if key := ledger.NormalizeName(name); key != "" {
			if seenNames[key] {
				report.DuplicateAccountsDropped++
				m.logger.Warn("dropping duplicate account", "index", i, "name", name, "id", rec.str("id"))
				changed = true
				continue
			}
			seenNames[key] = true
		}

		id := rec.str("id")
		if id == "" || seenIDs[id] {
			fresh := ledger.NewID()
			m.logger.Warn("assigning fresh account id", "index", i, "name", name, "old_id", id, "new_id", fresh)
			rec.set("id", fresh)
			id = fresh
			report.AccountIDsAssigned++
			changed = true
		}
		seenIDs[id] = true

		out = append(out, rec)
	}
	return out, changed
}

// migrateTransactions backfills sourceId from the legacy source name
func (m *Migrator) migrateTransactions(accounts, records []record, q *quarantine, report *Report) ([]record, bool) {
	byName := make(map[string]string)
	for _, a := range accounts {
		if a.fields == nil {
			continue
		}
		key := ledger.NormalizeName(a.str("name"))
		if _, ok := byName[key]; !ok && key != "" {
			byName[key] = a.str("id")
		}
	}

	changed := false
	out := records[:0:0]
	for i := range records {
		rec := &records[i]
		if rec.fields == nil {
			m.quarantineRecord(q, ledger.KeyTransactions, i, *rec, "not a JSON object", report)
			changed = true
			continue
		}
		out = append(out, *rec)
		rec = &out[len(out)-1]
		if rec.str("sourceId") != "" {
			continue
		}
		source := rec.str("source")
		if source == "" {
			continue
		}
		id, ok := byName[ledger.NormalizeName(source)]
		if !ok {
			report.UnresolvedSources++
			m.logger.Warn("transaction account not found, leaving unlinked",
				"transaction_id", rec.str("id"), "source", source)
			continue
		}
		rec.set("sourceId", id)
		report.SourcesLinked++
		changed = true
	}
	return out, changed
}

// sanitizeTransactions trims timestamp dates to YYYY-MM-DD and quarantines
// every transaction the ledger still cannot decode
func (m *Migrator) sanitizeTransactions(records []record, q *quarantine, report *Report) ([]record, bool) {
	changed := false
	out := records[:0:0]
	for i, rec := range records {
		if date := rec.str("date"); date != "" {
			if day, ok := normalizeDate(date); ok && day != date {
				rec.set("date", day)
				report.DatesNormalized++
				changed = true
			}
		}

		var t ledger.Transaction
		if err := rec.decode(&t); err != nil {
			m.quarantineRecord(q, ledger.KeyTransactions, i, rec, err.Error(), report)
			changed = true
			continue
		}
		out = append(out, rec)
	}
	return out, changed
}

// repairBalances fixes numeric account fields that do not decode. An
// unreadable opening balance is dropped so the backfill recomputes it; an
// unreadable balance is rebuilt from the opening balance and the account's
// transactions, or reset to zero when there is no opening balance either.
func (m *Migrator) repairBalances(accounts []record, effects map[string]decimal.Decimal, report *Report) ([]record, bool) {
	changed := false
	for i := range accounts {
		rec := &accounts[i]
		id := rec.str("id")

		if rec.has("openingBalance") {
			if _, ok := rec.decimal("openingBalance"); !ok {
				m.logger.Warn("dropping unreadable opening balance", "account_id", id,
					"value", string(rec.fields["openingBalance"]))
				delete(rec.fields, "openingBalance")
				report.FieldsRepaired++
				changed = true
			}
		}

		if !rec.has("balance") {
			continue
		}
		if _, ok := rec.decimal("balance"); ok {
			continue
		}
		balance := decimal.Zero
		if rec.has("openingBalance") {
			opening, _ := rec.decimal("openingBalance")
			balance = opening.Add(effects[id])
		}
		m.logger.Warn("rebuilding unreadable account balance", "account_id", id,
			"value", string(rec.fields["balance"]), "balance", balance.String())
		rec.set("balance", balance)
		report.FieldsRepaired++
		changed = true
	}
	return accounts, changed
}

// backfillOpeningBalances records openingBalance = balance - effects for
// accounts created before opening balances were stored
func (m *Migrator) backfillOpeningBalances(accounts []record, effects map[string]decimal.Decimal, report *Report) ([]record, bool) {
	changed := false
	for i := range accounts {
		rec := &accounts[i]
		if rec.has("openingBalance") {
			continue
		}
		balance, _ := rec.decimal("balance")
		if !rec.has("balance") {
			rec.set("balance", balance)
		}
		rec.set("openingBalance", balance.Sub(effects[rec.str("id")]))
		report.OpeningBalancesBackfilled++
		changed = true
	}
	return accounts, changed
}

// sanitizeAccounts quarantines accounts the ledger cannot decode
func (m *Migrator) sanitizeAccounts(records []record, q *quarantine, report *Report) ([]record, bool) {
	changed := false
	out := records[:0:0]
	for i, rec := range records {
		var a ledger.Account
		if err := rec.decode(&a); err != nil {
			m.quarantineRecord(q, ledger.KeyAccounts, i, rec, err.Error(), report)
			changed = true
			continue
		}
		out = append(out, rec)
	}
	return out, changed
}

func (m *Migrator) quarantineRecord(q *quarantine, collection string, index int, rec record, reason string, report *Report) {
	q.add(collection, rec, reason)
	m.logger.Warn("quarantining record the ledger cannot read",
		"collection", collection, "index", index, "reason", reason)
	report.RecordsQuarantined++
}

// effectsByAccount sums the effect of every linked transaction per account.
// records must already decode as transactions.
func effectsByAccount(transactions []record) map[string]decimal.Decimal {
	effects := make(map[string]decimal.Decimal)
	for _, rec := range transactions {
		var t ledger.Transaction
		if rec.decode(&t) != nil || t.SourceID == "" {
			continue
		}
		effects[t.SourceID] = effects[t.SourceID].Add(ledger.Effect(t))
	}
	return effects
}

// normalizeDate reduces an RFC3339 timestamp or any value starting with a
// valid YYYY-MM-DD to that day
func normalizeDate(s string) (string, bool) {
	if _, err := time.Parse(clock.DateLayout, s); err == nil {
		return s, true
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.Format(clock.DateLayout), true
	}
	if len(s) > len(clock.DateLayout) {
		day := s[:len(clock.DateLayout)]
		if _, err := time.Parse(clock.DateLayout, day); err == nil {
			return day, true
		}
	}
	return "", false
}
