package session

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/parley-chat/parley/internal/llm"
	"github.com/parley-chat/parley/internal/memory"
	"github.com/parley-chat/parley/internal/store"
	"github.com/parley-chat/parley/internal/telemetry"
)

// Registry resolves session keys to live actors. It guarantees a stable
// 1:1 mapping for the lifetime of the process: the same key always yields
// the same actor, and concurrent first requests for an unseen key receive
// a single winner's actor. Uses sync.Map for concurrent-safe reads and
// singleflight for construction deduplication.
type Registry struct {
	store   store.Store
	client  llm.Client
	policy  memory.Policy
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	actors sync.Map // map[string]*Actor
	group  singleflight.Group
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithTracer sets the tracer for per-turn spans.
func WithTracer(t *telemetry.Tracer) RegistryOption {
	return func(r *Registry) { r.tracer = t }
}

// WithPolicy sets the context-shaping policy. Defaults to memory.SendAll.
func WithPolicy(p memory.Policy) RegistryOption {
	return func(r *Registry) { r.policy = p }
}

// NewRegistry creates a registry whose actors persist to s and call
// inference through client.
func NewRegistry(s store.Store, client llm.Client, cfg Config, opts ...RegistryOption) *Registry {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	r := &Registry{
		store:   s,
		client:  client,
		policy:  memory.SendAll{},
		cfg:     cfg,
		logger:  slog.Default(),
		metrics: telemetry.NewMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metrics returns the registry's metrics collector.
func (r *Registry) Metrics() *telemetry.Metrics { return r.metrics }

// Resolve returns the actor owning key, constructing it on first use.
// Resolution is deterministic: the same key always yields the same actor.
// The only failure is a malformed (empty) key.
func (r *Registry) Resolve(key string) (*Actor, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	// Fast path: actor already live.
	if a, ok := r.actors.Load(key); ok {
		return a.(*Actor), nil
	}

	// Deduplicate concurrent construction for an unseen key: every
	// waiter observes the single winner's actor.
	a, _, _ := r.group.Do(key, func() (interface{}, error) {
		if a, ok := r.actors.Load(key); ok {
			return a.(*Actor), nil
		}
		a := newActor(key, r)
		r.actors.Store(key, a)
		return a, nil
	})
	return a.(*Actor), nil
}

// Drain waits for every in-flight operation to finish by acquiring each
// actor's writer slot, bounded by ctx. New work arriving during the drain
// is not blocked; Drain is a shutdown courtesy, not a barrier.
func (r *Registry) Drain(ctx context.Context) error {
	var err error
	r.actors.Range(func(_, value interface{}) bool {
		a := value.(*Actor)
		if acquireErr := a.acquire(ctx); acquireErr != nil {
			err = acquireErr
			return false
		}
		a.release()
		return true
	})
	return err
}
