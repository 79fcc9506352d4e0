package memory

import (
	"context"

	"github.com/parley-chat/parley/internal/chat"
)

// SlidingWindow sends only the most recent turns to inference.
type SlidingWindow struct {
	maxTurns int
}

// NewSlidingWindow creates a sliding window policy.
// maxTurns is the maximum number of turns sent per inference call.
func NewSlidingWindow(maxTurns int) *SlidingWindow {
	if maxTurns <= 0 {
		maxTurns = 50
	}
	return &SlidingWindow{maxTurns: maxTurns}
}

// Shape returns the last maxTurns turns. The window is aligned to start
// on a user turn, since providers reject a context whose first message is
// assistant-role.
func (s *SlidingWindow) Shape(_ context.Context, turns []chat.Turn) ([]chat.Turn, error) {
	if len(turns) <= s.maxTurns {
		return turns, nil
	}
	window := turns[len(turns)-s.maxTurns:]
	for len(window) > 0 && window[0].Role != chat.RoleUser {
		window = window[1:]
	}
	return window, nil
}
