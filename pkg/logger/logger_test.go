package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOptions_Levels(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		debugSeen bool
		json      bool
	}{
		{"development text", Options{Env: "development"}, true, false},
		{"development json", Options{Env: "development", Format: "json"}, true, true},
		{"production", Options{Env: "production"}, false, true},
		{"level override", Options{Env: "development", Level: "warn"}, false, false},
		{"bad level ignored", Options{Env: "production", Level: "loud"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			l := NewWithOptions(tt.opts, &out)
			l.Debug("balance recomputed")
			assert.Equal(t, tt.debugSeen, out.Len() > 0)

			out.Reset()
			l.Error("store unavailable")
			require.NotZero(t, out.Len())
			assert.Equal(t, tt.json, bytes.HasPrefix(out.Bytes(), []byte("{")))
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel(" WARNING ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestWithContext(t *testing.T) {
	var out bytes.Buffer
	l := NewWithFormat("development", "json", &out)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, OperationKey, "add transaction")
	l.WithContext(ctx).WithComponent(ComponentLedger).Info("transaction added")

	line := out.String()
	assert.Contains(t, line, `"request_id":"req-1"`)
	assert.Contains(t, line, `"operation":"add transaction"`)
	assert.Contains(t, line, `"component":"ledger"`)

	assert.Same(t, l, l.WithContext(context.Background()))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := Nop()
	assert.Same(t, l, OrNop(l))
	assert.Same(t, l, l.WithError(nil))
}
