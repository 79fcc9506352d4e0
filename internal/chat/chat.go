// Package chat defines the conversation data model shared by the store,
// the session actors and the inference client.
package chat

import "time"

// Role identifies the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single role-tagged message in a conversation. Turns are
// immutable once appended to a session.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is one user's durable conversation state. Turns[0] is always the
// system turn inserted at creation; it is never duplicated or reordered.
type Session struct {
	Key       string    `json:"session_key"`
	CreatedAt time.Time `json:"created_at"`
	Turns     []Turn    `json:"turns"`
}

// NewSession creates a fresh session whose transcript holds exactly the
// initial system turn.
func NewSession(key, systemPrompt string) *Session {
	return &Session{
		Key:       key,
		CreatedAt: time.Now().UTC(),
		Turns:     []Turn{{Role: RoleSystem, Content: systemPrompt}},
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := &Session{
		Key:       s.Key,
		CreatedAt: s.CreatedAt,
		Turns:     make([]Turn, len(s.Turns)),
	}
	copy(c.Turns, s.Turns)
	return c
}

// History returns a copy of the transcript without the leading system turn.
func (s *Session) History() []Turn {
	if len(s.Turns) <= 1 {
		return nil
	}
	h := make([]Turn, len(s.Turns)-1)
	copy(h, s.Turns[1:])
	return h
}
