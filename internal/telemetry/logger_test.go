package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, "sk-live-abc123", "")

	logger.Info("auth header", slog.String("value", "Bearer sk-live-abc123"))

	out := buf.String()
	if strings.Contains(out, "sk-live-abc123") {
		t.Fatalf("secret leaked: %s", out)
	}
}

func TestNewLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record should be filtered: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("info record missing: %s", out)
	}
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc-123")
	if got := CorrelationID(ctx); got != "abc-123" {
		t.Fatalf("CorrelationID = %q, want abc-123", got)
	}

	generated := WithCorrelationID(context.Background(), "")
	if CorrelationID(generated) == "" {
		t.Fatal("empty id should be replaced with a generated one")
	}
}

func TestSessionLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, slog.LevelInfo)
	ctx := WithCorrelationID(context.Background(), "corr-1")

	SessionLogger(base, ctx, "alice").Info("turn complete")

	out := buf.String()
	if !strings.Contains(out, `"session_key":"alice"`) {
		t.Fatalf("missing session_key: %s", out)
	}
	if !strings.Contains(out, `"correlation_id":"corr-1"`) {
		t.Fatalf("missing correlation_id: %s", out)
	}
}
