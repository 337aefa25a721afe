package migration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pocketledger/internal/kv"
	"github.com/kislikjeka/pocketledger/internal/ledger"
)

// Quarantine keys hold records moved out of the live collections. Each
// entry keeps the record verbatim with the reason it could not be read.
const (
	KeyQuarantineAccounts     = "quarantine/accounts"
	KeyQuarantineTransactions = "quarantine/transactions"
)

// record is one element of a stored collection. fields is nil when the
// element is not a JSON object; raw then holds it verbatim.
type record struct {
	raw    json.RawMessage
	fields map[string]json.RawMessage
}

func (r record) str(key string) string {
	raw, ok := r.fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func (r record) has(key string) bool {
	raw, ok := r.fields[key]
	return ok && string(raw) != "null"
}

// decimal reads a numeric field. A missing or null field reads as zero.
func (r record) decimal(key string) (decimal.Decimal, bool) {
	if !r.has(key) {
		return decimal.Zero, true
	}
	var d decimal.Decimal
	if err := json.Unmarshal(r.fields[key], &d); err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func (r *record) set(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		// only strings and decimals are ever set
		panic(fmt.Sprintf("migration: encode %s: %v", key, err))
	}
	r.fields[key] = data
}

func (r record) decode(v any) error {
	data, err := json.Marshal(r.fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (r record) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return r.raw, nil
	}
	return json.Marshal(r.fields)
}

func readRecords(ctx context.Context, tx kv.Reader, key string) ([]record, error) {
	var raws []json.RawMessage
	if _, err := kv.GetJSON(ctx, tx, key, &raws); err != nil {
		return nil, err
	}

	out := make([]record, len(raws))
	for i, raw := range raws {
		out[i].raw = raw
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err == nil && fields != nil {
			out[i].fields = fields
		}
	}
	return out, nil
}

func writeRecords(ctx context.Context, tx kv.Writer, key string, records []record) error {
	return kv.SetJSON(ctx, tx, key, records)
}

// QuarantinedRecord is one entry under a quarantine key
type QuarantinedRecord struct {
	Reason string          `json:"reason"`
	Record json.RawMessage `json:"record"`
}

// quarantine collects the records a run moves aside, per collection
type quarantine struct {
	accounts     []QuarantinedRecord
	transactions []QuarantinedRecord
}

func (q *quarantine) add(collection string, rec record, reason string) {
	data, err := json.Marshal(rec)
	if err != nil {
		data = rec.raw
	}
	entry := QuarantinedRecord{Reason: reason, Record: data}
	if collection == ledger.KeyAccounts {
		q.accounts = append(q.accounts, entry)
	} else {
		q.transactions = append(q.transactions, entry)
	}
}

func (q *quarantine) empty() bool {
	return len(q.accounts) == 0 && len(q.transactions) == 0
}

// flush appends to whatever earlier runs already quarantined
func (q *quarantine) flush(ctx context.Context, tx kv.Tx) error {
	for key, entries := range map[string][]QuarantinedRecord{
		KeyQuarantineAccounts:     q.accounts,
		KeyQuarantineTransactions: q.transactions,
	} {
		if len(entries) == 0 {
			continue
		}
		var existing []QuarantinedRecord
		if _, err := kv.GetJSON(ctx, tx, key, &existing); err != nil {
			return err
		}
		if err := kv.SetJSON(ctx, tx, key, append(existing, entries...)); err != nil {
			return err
		}
	}
	return nil
}

// ReadQuarantine returns the records quarantined under key
func ReadQuarantine(ctx context.Context, r kv.Reader, key string) ([]QuarantinedRecord, error) {
	var out []QuarantinedRecord
	if _, err := kv.GetJSON(ctx, r, key, &out); err != nil {
		return nil, err
	}
	return out, nil
}
