package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/llm"
	"github.com/parley-chat/parley/internal/session"
	"github.com/parley-chat/parley/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type echoClient struct{}

func (echoClient) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	last := req.Messages[len(req.Messages)-1]
	return &llm.ChatResponse{
		Content:    "echo:" + last.Content,
		StopReason: llm.StopEndTurn,
		Usage:      llm.TokenUsage{InputTokens: 3, OutputTokens: 2},
	}, nil
}

type errClient struct {
	err error
}

func (c errClient) Chat(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, c.err
}

type failingStore struct {
	store.Store
}

func (failingStore) Put(context.Context, string, *chat.Session) error {
	return errors.New("disk full")
}

func newTestServer(t *testing.T, client llm.Client, s store.Store) *Server {
	t.Helper()
	if s == nil {
		s = store.NewMemoryStore()
	}
	reg := session.NewRegistry(s, client, session.Config{
		Model:        "test-model",
		SystemPrompt: "Be brief.",
	})
	return New(reg, []string{"*"})
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func getPath(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, echoClient{}, nil)
	rec := getPath(srv.Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestTurnRoundTrip(t *testing.T) {
	srv := newTestServer(t, echoClient{}, nil)
	h := srv.Handler()

	rec := postJSON(t, h, "/v1/sessions/alice/turns", map[string]string{"message": "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("turn status = %d, body %s", rec.Code, rec.Body.String())
	}
	var turn struct {
		SessionKey string `json:"session_key"`
		Reply      string `json:"reply"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &turn); err != nil {
		t.Fatalf("decode turn response: %v", err)
	}
	if turn.SessionKey != "alice" {
		t.Fatalf("session_key = %q, want alice", turn.SessionKey)
	}
	if turn.Reply != "echo:hello" {
		t.Fatalf("reply = %q, want echo:hello", turn.Reply)
	}

	rec = getPath(h, "/v1/sessions/alice/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, body %s", rec.Code, rec.Body.String())
	}
	var hist struct {
		SessionKey string      `json:"session_key"`
		Turns      []chat.Turn `json:"turns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode history response: %v", err)
	}
	if len(hist.Turns) != 2 {
		t.Fatalf("history has %d turns, want 2", len(hist.Turns))
	}
	if hist.Turns[0].Role != chat.RoleUser || hist.Turns[0].Content != "hello" {
		t.Fatalf("unexpected first turn: %+v", hist.Turns[0])
	}
	if hist.Turns[1].Role != chat.RoleAssistant || hist.Turns[1].Content != "echo:hello" {
		t.Fatalf("unexpected second turn: %+v", hist.Turns[1])
	}
}

func TestHistoryEmptySession(t *testing.T) {
	srv := newTestServer(t, echoClient{}, nil)
	rec := getPath(srv.Handler(), "/v1/sessions/fresh/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"turns":[]`) {
		t.Fatalf("empty history should encode as [], got %s", rec.Body.String())
	}
}

func TestReset(t *testing.T) {
	srv := newTestServer(t, echoClient{}, nil)
	h := srv.Handler()

	postJSON(t, h, "/v1/sessions/alice/turns", map[string]string{"message": "hello"})
	rec := postJSON(t, h, "/v1/sessions/alice/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = getPath(h, "/v1/sessions/alice/history")
	var hist struct {
		Turns []chat.Turn `json:"turns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode history response: %v", err)
	}
	if len(hist.Turns) != 0 {
		t.Fatalf("history after reset has %d turns, want 0", len(hist.Turns))
	}
}

func TestTurnRejectsEmptyMessage(t *testing.T) {
	srv := newTestServer(t, echoClient{}, nil)
	rec := postJSON(t, srv.Handler(), "/v1/sessions/alice/turns", map[string]string{"message": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestTurnInferenceFailure(t *testing.T) {
	srv := newTestServer(t, errClient{err: fmt.Errorf("model overloaded")}, nil)
	h := srv.Handler()

	rec := postJSON(t, h, "/v1/sessions/bob/turns", map[string]string{"message": "hi"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusBadGateway, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "inference_failure") {
		t.Fatalf("body missing inference_failure: %s", rec.Body.String())
	}

	// Failed turn must leave nothing behind.
	rec = getPath(h, "/v1/sessions/bob/history")
	var hist struct {
		Turns []chat.Turn `json:"turns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode history response: %v", err)
	}
	if len(hist.Turns) != 0 {
		t.Fatalf("history after failed turn has %d turns, want 0", len(hist.Turns))
	}
}

func TestTurnPersistenceFailure(t *testing.T) {
	srv := newTestServer(t, echoClient{}, failingStore{Store: store.NewMemoryStore()})
	h := srv.Handler()

	rec := postJSON(t, h, "/v1/sessions/carol/turns", map[string]string{"message": "hi"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusInternalServerError, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "persistence_failure") {
		t.Fatalf("body missing persistence_failure: %s", rec.Body.String())
	}

	// The turn survives in memory even though the write failed.
	rec = getPath(h, "/v1/sessions/carol/history")
	var hist struct {
		Turns []chat.Turn `json:"turns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode history response: %v", err)
	}
	if len(hist.Turns) != 2 {
		t.Fatalf("history has %d turns, want 2", len(hist.Turns))
	}
}

func TestRequestIDEchoed(t *testing.T) {
	srv := newTestServer(t, echoClient{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("X-Request-ID = %q, want req-123", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, echoClient{}, nil)
	h := srv.Handler()

	postJSON(t, h, "/v1/sessions/alice/turns", map[string]string{"message": "hello"})
	rec := getPath(h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "parley_turns_total") {
		t.Fatalf("metrics missing parley_turns_total:\n%s", body)
	}
	if !strings.Contains(body, `status="ok"`) {
		t.Fatalf("metrics missing ok turn sample:\n%s", body)
	}
}
