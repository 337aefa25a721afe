package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for request ID.
	RequestIDKey contextKey = "request_id"
	// OperationKey is the context key for the ledger operation being served.
	OperationKey contextKey = "operation"
)

// Logger is a structured logger wrapper around slog
type Logger struct {
	*slog.Logger
}

// Options selects the handler and level. Zero values mean: text output,
// debug outside production, info in production.
type Options struct {
	Env    string
	Format string // "json" or "text"
	Level  string // debug, info, warn, error
}

// OptionsFromEnv reads LOG_FORMAT and LOG_LEVEL
func OptionsFromEnv(env string) Options {
	return Options{
		Env:    env,
		Format: os.Getenv("LOG_FORMAT"),
		Level:  os.Getenv("LOG_LEVEL"),
	}
}

// New creates a new structured logger configured from the environment
func New(env string, output io.Writer) *Logger {
	return NewWithOptions(OptionsFromEnv(env), output)
}

// NewWithFormat creates a new structured logger with explicit format override.
func NewWithFormat(env, logFormat string, output io.Writer) *Logger {
	return NewWithOptions(Options{Env: env, Format: logFormat}, output)
}

// NewWithOptions builds the slog handler. Production always logs JSON.
func NewWithOptions(o Options, output io.Writer) *Logger {
	level := slog.LevelDebug
	if o.Env == "production" {
		level = slog.LevelInfo
	}
	if o.Level != "" {
		if l, err := ParseLevel(o.Level); err == nil {
			level = l
		}
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   true,
		ReplaceAttr: replaceAttr,
	}

	var handler slog.Handler
	if o.Env == "production" || o.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// replaceAttr formats time as RFC3339 and trims source to file:line
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.Format(time.RFC3339))
		}
	case slog.SourceKey:
		if src, ok := a.Value.Any().(*slog.Source); ok {
			a.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return a
}

// ParseLevel maps a level name to its slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// NewDefault creates a new logger with default settings (stdout)
func NewDefault(env string) *Logger {
	return New(env, os.Stdout)
}

// Nop returns a logger that discards everything. Components fall back to it
// when constructed without a logger.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// WithContext adds the request id and operation carried by ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	args := make([]any, 0, 4)
	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		args = append(args, "request_id", requestID)
	}
	if op := ctx.Value(OperationKey); op != nil {
		args = append(args, "operation", op)
	}
	if len(args) == 0 {
		return l
	}
	return &Logger{Logger: l.With(args...)}
}

// WithComponent tags every record with the component name
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithField("component", component)
}

// WithFields creates a new logger with additional fields
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.With(args...)}
}

// WithField creates a new logger with an additional field
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{Logger: l.With(key, value)}
}

// WithError creates a new logger with an error field
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{Logger: l.With("error", err.Error())}
}

// WithDuration creates a new logger with a duration_ms field
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{Logger: l.With("duration_ms", d.Milliseconds())}
}
