package chat

import "testing"

func TestNewSession(t *testing.T) {
	s := NewSession("alice", "Be brief.")
	if s.Key != "alice" {
		t.Fatalf("Key = %q, want alice", s.Key)
	}
	if len(s.Turns) != 1 {
		t.Fatalf("new session has %d turns, want 1", len(s.Turns))
	}
	if s.Turns[0].Role != RoleSystem || s.Turns[0].Content != "Be brief." {
		t.Fatalf("unexpected system turn: %+v", s.Turns[0])
	}
	if s.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := NewSession("alice", "sys")
	s.Turns = append(s.Turns, Turn{Role: RoleUser, Content: "hi"})

	c := s.Clone()
	c.Turns[1].Content = "changed"
	c.Turns = append(c.Turns, Turn{Role: RoleAssistant, Content: "extra"})

	if s.Turns[1].Content != "hi" {
		t.Fatalf("clone mutation leaked into original: %+v", s.Turns[1])
	}
	if len(s.Turns) != 2 {
		t.Fatalf("original grew to %d turns", len(s.Turns))
	}
}

func TestHistoryExcludesSystemTurn(t *testing.T) {
	s := NewSession("alice", "sys")
	if got := s.History(); got != nil {
		t.Fatalf("fresh session history = %v, want nil", got)
	}

	s.Turns = append(s.Turns,
		Turn{Role: RoleUser, Content: "hi"},
		Turn{Role: RoleAssistant, Content: "hello"},
	)
	h := s.History()
	if len(h) != 2 {
		t.Fatalf("history has %d turns, want 2", len(h))
	}
	if h[0].Role != RoleUser || h[1].Role != RoleAssistant {
		t.Fatalf("unexpected history roles: %+v", h)
	}

	// History hands out a copy.
	h[0].Content = "mutated"
	if s.Turns[1].Content != "hi" {
		t.Fatal("history mutation leaked into session")
	}
}
