// Package backup exports the whole ledger to a portable snapshot and restores
// it as one atomic replacement of the stored state.
package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FormatVersion is written into every snapshot
const FormatVersion = "1.0"

// KeyLastBackup holds the most recent exported snapshot
const KeyLastBackup = "lastBackup"

// ErrInvalidFormat is returned when a snapshot lacks a transactions or an
// accounts list
var ErrInvalidFormat = errors.New("invalid backup format")

// Data is the payload of a snapshot. The collections are kept as raw JSON so
// records round-trip exactly, unknown fields included.
type Data struct {
	Transactions json.RawMessage `json:"transactions"`
	Accounts     json.RawMessage `json:"accounts"`
	Username     string          `json:"username"`
}

// Snapshot is the portable backup document
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Data      Data      `json:"data"`
}

// Parse decodes and validates a snapshot document
func Parse(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Validate checks that both collections are present and are JSON arrays
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: empty snapshot", ErrInvalidFormat)
	}
	if !isArray(s.Data.Transactions) {
		return fmt.Errorf("%w: data.transactions must be a list", ErrInvalidFormat)
	}
	if !isArray(s.Data.Accounts) {
		return fmt.Errorf("%w: data.accounts must be a list", ErrInvalidFormat)
	}
	return nil
}

// Counts reports the number of accounts and transactions in the snapshot
func (s *Snapshot) Counts() (accounts, transactions int) {
	var items []json.RawMessage
	if json.Unmarshal(s.Data.Accounts, &items) == nil {
		accounts = len(items)
	}
	items = nil
	if json.Unmarshal(s.Data.Transactions, &items) == nil {
		transactions = len(items)
	}
	return accounts, transactions
}

// FileName is the name a sink stores the snapshot under
func (s *Snapshot) FileName() string {
	return "ledger-backup-" + s.Timestamp.UTC().Format("20060102T150405Z") + ".json"
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false
	}
	var items []json.RawMessage
	return json.Unmarshal(trimmed, &items) == nil
}
