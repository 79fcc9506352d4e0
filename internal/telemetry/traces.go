package telemetry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"
)

// Span represents a single trace span for an operation.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration_ms,omitempty"`
	Status    string            `json:"status"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Tracer creates and manages trace spans.
type Tracer struct {
	// Exporter receives completed spans. If nil, spans are discarded.
	Exporter SpanExporter
}

// SpanExporter receives completed spans for export to a tracing backend.
type SpanExporter interface {
	ExportSpan(span Span)
}

// SpanExporterFunc is a function adapter for SpanExporter.
type SpanExporterFunc func(span Span)

// ExportSpan calls the function.
func (f SpanExporterFunc) ExportSpan(span Span) { f(span) }

// NewTracer creates a new tracer with an optional exporter.
func NewTracer(exporter SpanExporter) *Tracer {
	return &Tracer{Exporter: exporter}
}

// LogExporter exports completed spans as debug records on logger.
func LogExporter(logger *slog.Logger) SpanExporter {
	return SpanExporterFunc(func(span Span) {
		attrs := []any{
			"trace_id", span.TraceID,
			"span_id", span.SpanID,
			"operation", span.Operation,
			"duration_ms", span.Duration.Milliseconds(),
			"status", span.Status,
		}
		if span.ParentID != "" {
			attrs = append(attrs, "parent_id", span.ParentID)
		}
		for k, v := range span.Tags {
			attrs = append(attrs, k, v)
		}
		logger.Debug("span", attrs...)
	})
}

type traceContextKey struct{}

// StartSpan creates a new span and adds it to the context.
func (t *Tracer) StartSpan(ctx context.Context, operation string, tags map[string]string) (context.Context, *Span) {
	span := &Span{
		TraceID:   generateID(),
		SpanID:    generateID(),
		Operation: operation,
		StartTime: time.Now(),
		Status:    "ok",
		Tags:      tags,
	}

	// Inherit trace ID and set parent from context
	if parent, ok := ctx.Value(traceContextKey{}).(*Span); ok {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	}

	return context.WithValue(ctx, traceContextKey{}, span), span
}

// EndSpan completes a span and exports it.
func (t *Tracer) EndSpan(span *Span, status string) {
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if status != "" {
		span.Status = status
	}
	if t.Exporter != nil {
		t.Exporter.ExportSpan(*span)
	}
}

// TurnTags returns standard tags for a session turn span.
func TurnTags(sessionKey, model string) map[string]string {
	return map[string]string{
		"operation":   "turn",
		"session_key": sessionKey,
		"model":       model,
	}
}

func generateID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
