// Package telemetry provides observability for the parley session runtime.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics collects Prometheus-style metrics for the session runtime.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	turnsTotal    map[string]int64 // key: model,status
	tokensTotal   map[string]int64 // key: model,type
	restoresTotal map[string]int64 // key: outcome (restored|created)

	// Histograms (simplified: bucket counts + sum + count)
	turnDurations map[string]*histogram // key: model
}

type histogram struct {
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

var defaultBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

func newHistogram() *histogram {
	return &histogram{
		buckets: defaultBuckets,
		counts:  make([]int64, len(defaultBuckets)+1), // +1 for +Inf
	}
}

func (h *histogram) observe(value float64) {
	h.sum += value
	h.count++
	for i, b := range h.buckets {
		if value <= b {
			h.counts[i]++
			return
		}
	}
	h.counts[len(h.buckets)]++ // +Inf bucket
}

// NewMetrics creates a new Metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		turnsTotal:    make(map[string]int64),
		tokensTotal:   make(map[string]int64),
		restoresTotal: make(map[string]int64),
		turnDurations: make(map[string]*histogram),
	}
}

// RecordTurn records a completed turn attempt.
func (m *Metrics) RecordTurn(model, status string, duration time.Duration, inputTokens, outputTokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s,%s", model, status)
	m.turnsTotal[key]++

	h, ok := m.turnDurations[model]
	if !ok {
		h = newHistogram()
		m.turnDurations[model] = h
	}
	h.observe(duration.Seconds())

	m.tokensTotal[fmt.Sprintf("%s,input", model)] += int64(inputTokens)
	m.tokensTotal[fmt.Sprintf("%s,output", model)] += int64(outputTokens)
}

// RecordRestore records a session materialization: "restored" when durable
// state existed, "created" for a fresh session.
func (m *Metrics) RecordRestore(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restoresTotal[outcome]++
}

// Handler returns an HTTP handler that serves Prometheus-format metrics.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		sb.WriteString("# HELP parley_turns_total Total turn attempts\n")
		sb.WriteString("# TYPE parley_turns_total counter\n")
		for _, key := range sortedKeys(m.turnsTotal) {
			parts := strings.SplitN(key, ",", 2)
			fmt.Fprintf(&sb, "parley_turns_total{model=%q,status=%q} %d\n",
				parts[0], parts[1], m.turnsTotal[key])
		}
		sb.WriteString("\n")

		sb.WriteString("# HELP parley_turn_duration_seconds Turn duration\n")
		sb.WriteString("# TYPE parley_turn_duration_seconds histogram\n")
		for _, model := range sortedMapKeys(m.turnDurations) {
			h := m.turnDurations[model]
			cumulative := int64(0)
			for i, b := range h.buckets {
				cumulative += h.counts[i]
				fmt.Fprintf(&sb, "parley_turn_duration_seconds_bucket{model=%q,le=\"%.3g\"} %d\n",
					model, b, cumulative)
			}
			cumulative += h.counts[len(h.buckets)]
			fmt.Fprintf(&sb, "parley_turn_duration_seconds_bucket{model=%q,le=\"+Inf\"} %d\n",
				model, cumulative)
			fmt.Fprintf(&sb, "parley_turn_duration_seconds_sum{model=%q} %.6f\n",
				model, h.sum)
			fmt.Fprintf(&sb, "parley_turn_duration_seconds_count{model=%q} %d\n",
				model, h.count)
		}
		sb.WriteString("\n")

		sb.WriteString("# HELP parley_tokens_total Tokens consumed\n")
		sb.WriteString("# TYPE parley_tokens_total counter\n")
		for _, key := range sortedKeys(m.tokensTotal) {
			parts := strings.SplitN(key, ",", 2)
			fmt.Fprintf(&sb, "parley_tokens_total{model=%q,type=%q} %d\n",
				parts[0], parts[1], m.tokensTotal[key])
		}
		sb.WriteString("\n")

		sb.WriteString("# HELP parley_session_restores_total Session materializations\n")
		sb.WriteString("# TYPE parley_session_restores_total counter\n")
		for _, key := range sortedKeys(m.restoresTotal) {
			fmt.Fprintf(&sb, "parley_session_restores_total{outcome=%q} %d\n",
				key, m.restoresTotal[key])
		}

		_, _ = w.Write([]byte(sb.String()))
	})
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
