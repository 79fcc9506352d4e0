package telemetry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// NewLogger creates a structured JSON logger. Any non-empty secrets are
// scrubbed from every record before it is written.
func NewLogger(w io.Writer, level slog.Level, secrets ...string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := NewRedactHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	for _, s := range secrets {
		handler.AddSecret(s)
	}
	return slog.New(handler)
}

// WithCorrelationID adds a correlation ID to the context.
// If id is empty, a new random ID is generated.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		b := make([]byte, 16)
		_, _ = rand.Read(b)
		id = hex.EncodeToString(b)
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID retrieves the correlation ID from context.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// SessionLogger returns a logger with session-scoped fields.
func SessionLogger(logger *slog.Logger, ctx context.Context, sessionKey string) *slog.Logger {
	attrs := []any{
		slog.String("session_key", sessionKey),
	}
	if id := CorrelationID(ctx); id != "" {
		attrs = append(attrs, slog.String("correlation_id", id))
	}
	return logger.With(attrs...)
}
