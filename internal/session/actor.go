// Package session implements the keyed session actor at the core of the
// parley runtime: one single-writer actor per session key, owning that
// conversation's in-memory transcript and its durability.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/llm"
	"github.com/parley-chat/parley/internal/memory"
	"github.com/parley-chat/parley/internal/store"
	"github.com/parley-chat/parley/internal/telemetry"
)

// DefaultSystemPrompt seeds the transcript of a newly created session.
const DefaultSystemPrompt = "You are a helpful assistant."

// Config holds the per-turn inference parameters shared by all actors of
// a registry.
type Config struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
}

// Actor owns one session's in-memory state. All operations are admitted
// one at a time through the writer slot; waiters queue in arrival order
// and may give up when their context expires.
//
// The transcript is restored from the durable store (or created) by the
// first admitted operation after process start, so a restore is never
// raced by a concurrent turn.
type Actor struct {
	key     string
	store   store.Store
	client  llm.Client
	policy  memory.Policy
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	// slot is the single-writer execution slot: a buffered channel of
	// capacity one. The holder of the slot has exclusive ownership of
	// sess. Blocked senders are released in FIFO order by the runtime,
	// which gives turns their admission order.
	slot chan struct{}

	// sess is nil until the first admitted operation loads it.
	// Guarded by slot.
	sess *chat.Session
}

func newActor(key string, r *Registry) *Actor {
	return &Actor{
		key:     key,
		store:   r.store,
		client:  r.client,
		policy:  r.policy,
		cfg:     r.cfg,
		logger:  r.logger,
		metrics: r.metrics,
		tracer:  r.tracer,
		slot:    make(chan struct{}, 1),
	}
}

// Key returns the session key this actor owns.
func (a *Actor) Key() string { return a.key }

// acquire admits the caller to the writer slot, or returns the context's
// error if the deadline elapses while queued. A cancelled waiter leaves
// no side effects and releases its queue position.
func (a *Actor) acquire(ctx context.Context) error {
	select {
	case a.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) release() {
	<-a.slot
}

// ensureLoaded restores the session from the durable store, or creates a
// fresh one for a previously unseen key. Must be called while holding the
// writer slot.
func (a *Actor) ensureLoaded(ctx context.Context) error {
	if a.sess != nil {
		return nil
	}

	sess, err := a.store.Get(ctx, a.key)
	switch {
	case err == nil:
		a.sess = sess
		a.metrics.RecordRestore("restored")
		telemetry.SessionLogger(a.logger, ctx, a.key).Debug("session restored",
			"turns", len(sess.Turns))
	case errors.Is(err, store.ErrNotFound):
		a.sess = chat.NewSession(a.key, a.cfg.SystemPrompt)
		a.metrics.RecordRestore("created")
		telemetry.SessionLogger(a.logger, ctx, a.key).Debug("session created")
	default:
		return &TurnError{Key: a.key, Reason: ReasonPersistence,
			Err: fmt.Errorf("restore session: %w", err)}
	}
	return nil
}

// HandleTurn executes one full turn: append the user message, call
// inference with the shaped transcript, append the assistant reply, and
// persist the whole transcript.
//
// On inference failure the in-memory transcript is rolled back to its
// pre-turn state, nothing is persisted, and a TurnError with reason
// inference is returned. On persistence failure the completed turn stays
// in memory so this process instance remains consistent, but the error is
// still surfaced with reason persistence because durability was not
// achieved.
func (a *Actor) HandleTurn(ctx context.Context, userText string) (string, error) {
	start := time.Now()

	if err := a.acquire(ctx); err != nil {
		return "", err
	}
	defer a.release()

	if err := a.ensureLoaded(ctx); err != nil {
		return "", err
	}

	var span *telemetry.Span
	if a.tracer != nil {
		ctx, span = a.tracer.StartSpan(ctx, "turn", telemetry.TurnTags(a.key, a.cfg.Model))
	}

	log := telemetry.SessionLogger(a.logger, ctx, a.key)

	mark := len(a.sess.Turns)
	a.sess.Turns = append(a.sess.Turns, chat.Turn{Role: chat.RoleUser, Content: userText})

	reply, usage, err := a.infer(ctx)
	if err != nil {
		a.sess.Turns = a.sess.Turns[:mark]
		a.metrics.RecordTurn(a.cfg.Model, "inference_error", time.Since(start), 0, 0)
		if span != nil {
			a.tracer.EndSpan(span, "inference_error")
		}
		log.Error("turn failed, transcript rolled back", "error", err)
		return "", &TurnError{Key: a.key, Reason: ReasonInference, Err: err}
	}

	a.sess.Turns = append(a.sess.Turns, chat.Turn{Role: chat.RoleAssistant, Content: reply})

	if err := a.store.Put(ctx, a.key, a.sess); err != nil {
		a.metrics.RecordTurn(a.cfg.Model, "persistence_error", time.Since(start),
			usage.InputTokens, usage.OutputTokens)
		if span != nil {
			a.tracer.EndSpan(span, "persistence_error")
		}
		log.Error("turn completed but durable write failed", "error", err)
		return "", &TurnError{Key: a.key, Reason: ReasonPersistence,
			Err: fmt.Errorf("persist session: %w", err)}
	}

	a.metrics.RecordTurn(a.cfg.Model, "ok", time.Since(start),
		usage.InputTokens, usage.OutputTokens)
	if span != nil {
		a.tracer.EndSpan(span, "")
	}
	log.Info("turn handled",
		"turns", len(a.sess.Turns),
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens)
	return reply, nil
}

// infer shapes the transcript and performs the model call. Must be called
// while holding the writer slot, after the user turn has been appended.
func (a *Actor) infer(ctx context.Context) (string, llm.TokenUsage, error) {
	shaped, err := a.policy.Shape(ctx, a.sess.Turns[1:])
	if err != nil {
		return "", llm.TokenUsage{}, fmt.Errorf("shape context: %w", err)
	}

	messages := make([]llm.Message, 0, len(shaped))
	for _, turn := range shaped {
		messages = append(messages, llm.Message{Role: llm.Role(turn.Role), Content: turn.Content})
	}

	resp, err := a.client.Chat(ctx, llm.ChatRequest{
		Model:       a.cfg.Model,
		System:      a.sess.Turns[0].Content,
		Messages:    messages,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		return "", llm.TokenUsage{}, err
	}
	return resp.Content, resp.Usage, nil
}

// History returns a snapshot of the transcript without the leading system
// turn. It serializes against in-flight turns so a half-applied turn is
// never observed.
func (a *Actor) History(ctx context.Context) ([]chat.Turn, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()

	if err := a.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return a.sess.History(), nil
}

// Reset truncates the transcript back to the single initial system turn
// and persists that state. The session identity survives.
func (a *Actor) Reset(ctx context.Context) error {
	if err := a.acquire(ctx); err != nil {
		return err
	}
	defer a.release()

	if err := a.ensureLoaded(ctx); err != nil {
		return err
	}

	a.sess.Turns = a.sess.Turns[:1]
	if err := a.store.Put(ctx, a.key, a.sess); err != nil {
		telemetry.SessionLogger(a.logger, ctx, a.key).Error("reset not persisted", "error", err)
		return &TurnError{Key: a.key, Reason: ReasonPersistence,
			Err: fmt.Errorf("persist session: %w", err)}
	}
	telemetry.SessionLogger(a.logger, ctx, a.key).Info("session reset")
	return nil
}
