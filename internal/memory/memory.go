// Package memory defines context-shaping policies for the parley session
// runtime. A policy decides which turns of a transcript are sent to
// inference; the stored transcript itself is never modified.
package memory

import (
	"context"

	"github.com/parley-chat/parley/internal/chat"
)

// Strategy identifies a context-shaping strategy.
type Strategy string

const (
	StrategySendAll       Strategy = "all"
	StrategySlidingWindow Strategy = "window"
	StrategySummary       Strategy = "summary"
)

// Policy shapes the conversational context sent to the inference client.
// Shape receives the transcript without its leading system turn and
// returns the turns to send, most recent last. Implementations must not
// mutate the input slice.
type Policy interface {
	Shape(ctx context.Context, turns []chat.Turn) ([]chat.Turn, error)
}

// SendAll is the default policy: the full transcript is sent on every
// turn.
type SendAll struct{}

// Shape returns the input unchanged.
func (SendAll) Shape(_ context.Context, turns []chat.Turn) ([]chat.Turn, error) {
	return turns, nil
}
