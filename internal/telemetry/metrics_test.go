package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordTurn("claude-sonnet-4", "ok", 1200*time.Millisecond, 100, 20)
	m.RecordTurn("claude-sonnet-4", "ok", 300*time.Millisecond, 50, 10)
	m.RecordTurn("claude-sonnet-4", "inference_error", 30*time.Millisecond, 0, 0)
	m.RecordRestore("created")
	m.RecordRestore("restored")
	m.RecordRestore("restored")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`parley_turns_total{model="claude-sonnet-4",status="ok"} 2`,
		`parley_turns_total{model="claude-sonnet-4",status="inference_error"} 1`,
		`parley_tokens_total{model="claude-sonnet-4",type="input"} 150`,
		`parley_tokens_total{model="claude-sonnet-4",type="output"} 30`,
		`parley_turn_duration_seconds_bucket{model="claude-sonnet-4",le="0.5"} 2`,
		`parley_turn_duration_seconds_bucket{model="claude-sonnet-4",le="+Inf"} 3`,
		`parley_turn_duration_seconds_count{model="claude-sonnet-4"} 3`,
		`parley_session_restores_total{outcome="restored"} 2`,
		`parley_session_restores_total{outcome="created"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
}

func TestLogExporterEmitsSpans(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelDebug)
	tracer := NewTracer(LogExporter(logger))

	_, span := tracer.StartSpan(context.Background(), "turn", TurnTags("alice", "m"))
	tracer.EndSpan(span, "")

	out := buf.String()
	for _, want := range []string{`"operation":"turn"`, `"session_key":"alice"`, `"status":"ok"`, `"trace_id"`} {
		if !strings.Contains(out, want) {
			t.Errorf("span record missing %s:\n%s", want, out)
		}
	}
}

func TestTracerSpans(t *testing.T) {
	var exported []Span
	tracer := NewTracer(SpanExporterFunc(func(s Span) { exported = append(exported, s) }))

	ctx, root := tracer.StartSpan(context.Background(), "turn", TurnTags("alice", "m"))
	_, child := tracer.StartSpan(ctx, "inference", nil)
	tracer.EndSpan(child, "")
	tracer.EndSpan(root, "inference_error")

	if len(exported) != 2 {
		t.Fatalf("exported %d spans, want 2", len(exported))
	}
	if exported[0].TraceID != exported[1].TraceID {
		t.Error("child span did not inherit trace ID")
	}
	if exported[0].ParentID != exported[1].SpanID {
		t.Error("child span parent does not reference root span")
	}
	if exported[1].Status != "inference_error" {
		t.Errorf("root status = %q, want inference_error", exported[1].Status)
	}
}
