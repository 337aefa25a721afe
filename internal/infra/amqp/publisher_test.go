package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pocketledger/internal/ledger"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	declared   []string
	kinds      []string
	published  []published
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp091.Table) error {
	if !durable {
		return errors.New("exchange must be durable")
	}
	f.declared = append(f.declared, name)
	f.kinds = append(f.kinds, kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "pocketledger.events", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pocketledger.events"}, ch.declared)
	assert.Equal(t, []string{"topic"}, ch.kinds)

	at := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	event := ledger.Event{
		Type:       ledger.EventTransactionAdded,
		OccurredAt: at,
		Transaction: &ledger.Transaction{
			ID: "t1", Amount: decimal.NewFromInt(200), Type: ledger.TransactionTypeExpense,
			Category: "Food", SourceID: "a1", Source: "Cash", Date: "2024-01-05",
		},
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "pocketledger.events", got.exchange)
	assert.Equal(t, "transaction.added", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp091.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, at, got.msg.Timestamp)

	var body map[string]any
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "transaction.added", body["type"])
	tx := body["transaction"].(map[string]any)
	assert.Equal(t, "t1", tx["id"])
	assert.NotContains(t, body, "account")

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p, err := newPublisher(ch, "x", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), ledger.Event{Type: ledger.EventLedgerCleared})
	assert.ErrorContains(t, err, "publish ledger.cleared")
}
