package ledger

import (
	"context"
	"time"
)

// EventType names a ledger change
type EventType string

const (
	EventTransactionAdded   EventType = "transaction.added"
	EventTransactionUpdated EventType = "transaction.updated"
	EventTransactionDeleted EventType = "transaction.deleted"
	EventAccountAdded       EventType = "account.added"
	EventAccountUpdated     EventType = "account.updated"
	EventAccountDeleted     EventType = "account.deleted"
	EventLedgerRestored     EventType = "ledger.restored"
	EventLedgerCleared      EventType = "ledger.cleared"
)

// Event describes a committed change
type Event struct {
	Type        EventType    `json:"type"`
	OccurredAt  time.Time    `json:"occurredAt"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Account     *Account     `json:"account,omitempty"`
}

// EventPublisher delivers events to interested collaborators
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
