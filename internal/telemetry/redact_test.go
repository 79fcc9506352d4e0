package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRedactHandlerScrubsMessageAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewRedactHandler(slog.NewJSONHandler(&buf, nil))
	h.AddSecret("sk-ant-topsecret")

	logger := slog.New(h)
	logger.Info("calling api with key sk-ant-topsecret",
		slog.String("authorization", "Bearer sk-ant-topsecret"),
		slog.Int("attempt", 1))

	out := buf.String()
	if strings.Contains(out, "sk-ant-topsecret") {
		t.Fatalf("secret leaked into log output: %s", out)
	}
	if !strings.Contains(out, "***REDACTED***") {
		t.Fatalf("expected redaction placeholder in output: %s", out)
	}
	if !strings.Contains(out, `"attempt":1`) {
		t.Fatalf("non-string attrs should pass through: %s", out)
	}
}

func TestRedactHandlerNoSecretsPassthrough(t *testing.T) {
	var buf bytes.Buffer
	h := NewRedactHandler(slog.NewJSONHandler(&buf, nil))

	slog.New(h).Info("plain message", slog.String("k", "v"))

	out := buf.String()
	if !strings.Contains(out, "plain message") || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRedactHandlerScrubsWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewRedactHandler(slog.NewJSONHandler(&buf, nil))
	h.AddSecret("sk-live-xyz")

	// Attributes attached via With only pass through WithAttrs, never
	// through Handle, so they must be scrubbed there.
	slog.New(h).With(slog.String("api_key", "sk-live-xyz")).Info("client ready")

	out := buf.String()
	if strings.Contains(out, "sk-live-xyz") {
		t.Fatalf("secret in With attr leaked: %s", out)
	}
	if !strings.Contains(out, "***REDACTED***") {
		t.Fatalf("expected redaction placeholder in output: %s", out)
	}
}

func TestRedactHandlerSharedAcrossWith(t *testing.T) {
	var buf bytes.Buffer
	h := NewRedactHandler(slog.NewJSONHandler(&buf, nil))
	child := h.WithAttrs([]slog.Attr{slog.String("component", "llm")})

	// Secrets registered after derivation still apply to the child.
	h.AddSecret("hunter2")
	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "password is hunter2", 0)
	if err := child.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("secret leaked via derived handler: %s", out)
	}
}
