package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const redactedPlaceholder = "***REDACTED***"

// RedactHandler wraps a slog handler and scrubs registered secret values
// (API keys, tokens) from log output before it is written.
type RedactHandler struct {
	inner   slog.Handler
	mu      *sync.RWMutex
	secrets map[string]bool
}

// NewRedactHandler creates a log handler that redacts known secret values.
func NewRedactHandler(inner slog.Handler) *RedactHandler {
	return &RedactHandler{
		inner:   inner,
		mu:      &sync.RWMutex{},
		secrets: make(map[string]bool),
	}
}

// AddSecret registers a value to be redacted from log output.
func (h *RedactHandler) AddSecret(value string) {
	if value == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.secrets[value] = true
}

// Enabled delegates to the inner handler.
func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle redacts secret values from the record message and attributes.
func (h *RedactHandler) Handle(ctx context.Context, record slog.Record) error {
	h.mu.RLock()
	secrets := make([]string, 0, len(h.secrets))
	for s := range h.secrets {
		secrets = append(secrets, s)
	}
	h.mu.RUnlock()

	if len(secrets) == 0 {
		return h.inner.Handle(ctx, record)
	}

	msg := record.Message
	for _, s := range secrets {
		msg = strings.ReplaceAll(msg, s, redactedPlaceholder)
	}

	redacted := slog.NewRecord(record.Time, record.Level, msg, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(h.redactAttr(a, secrets))
		return true
	})

	return h.inner.Handle(ctx, redacted)
}

// WithAttrs redacts the attached attributes before handing them to the
// inner handler, since they never pass through Handle again.
// Shares the parent's mutex and secrets map so AddSecret is race-free.
func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.RLock()
	secrets := make([]string, 0, len(h.secrets))
	for s := range h.secrets {
		secrets = append(secrets, s)
	}
	h.mu.RUnlock()

	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a, secrets)
	}
	return &RedactHandler{
		inner:   h.inner.WithAttrs(redacted),
		mu:      h.mu,
		secrets: h.secrets,
	}
}

// WithGroup delegates to the inner handler.
// Shares the parent's mutex and secrets map so AddSecret is race-free.
func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{
		inner:   h.inner.WithGroup(name),
		mu:      h.mu,
		secrets: h.secrets,
	}
}

func (h *RedactHandler) redactAttr(a slog.Attr, secrets []string) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		val := a.Value.String()
		for _, s := range secrets {
			val = strings.ReplaceAll(val, s, redactedPlaceholder)
		}
		return slog.String(a.Key, val)
	}
	return a
}
