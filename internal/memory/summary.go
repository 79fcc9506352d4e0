package memory

import (
	"context"
	"fmt"

	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/llm"
)

// Summary shapes long transcripts by folding older turns into a single
// summary message. When the transcript exceeds the threshold, everything
// but the most recent half of the threshold is summarized with one
// inference call and sent as a single leading user turn.
type Summary struct {
	threshold int
	client    llm.Client
	model     string
}

// NewSummary creates a summarization policy.
func NewSummary(threshold int, client llm.Client, model string) *Summary {
	if threshold <= 0 {
		threshold = 20
	}
	return &Summary{
		threshold: threshold,
		client:    client,
		model:     model,
	}
}

// Shape returns the transcript unchanged while it fits within the
// threshold, and [summary, recent...] once it does not.
func (s *Summary) Shape(ctx context.Context, turns []chat.Turn) ([]chat.Turn, error) {
	if len(turns) <= s.threshold {
		return turns, nil
	}

	keepCount := s.threshold / 2
	toSummarize := turns[:len(turns)-keepCount]
	toKeep := turns[len(turns)-keepCount:]

	var summaryContent string
	for _, turn := range toSummarize {
		summaryContent += fmt.Sprintf("%s: %s\n", turn.Role, turn.Content)
	}

	resp, err := s.client.Chat(ctx, llm.ChatRequest{
		Model: s.model,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Summarize this conversation concisely, preserving key facts and decisions:\n\n" + summaryContent},
		},
		MaxTokens: 500,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize context: %w", err)
	}

	// The summary leads the shaped context as a user-role note, because
	// providers reject a context whose first message is assistant-role.
	shaped := make([]chat.Turn, 0, keepCount+1)
	shaped = append(shaped, chat.Turn{
		Role:    chat.RoleUser,
		Content: "[Previous conversation summary: " + resp.Content + "]",
	})
	shaped = append(shaped, toKeep...)
	return shaped, nil
}
