package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sandevgo/ragline/internal/config"
	"github.com/sandevgo/ragline/internal/core"
	"github.com/sandevgo/ragline/internal/service/chat"
	"github.com/sandevgo/ragline/internal/service/session"
)

type scriptedModel struct {
	fragments []string
	streamErr error
}

func (m *scriptedModel) Complete(ctx context.Context, messages []core.Message) (string, error) {
	return "", errors.New("not used")
}

func (m *scriptedModel) Stream(ctx context.Context, messages []core.Message, emit func(fragment string)) error {
	for _, f := range m.fragments {
		emit(f)
	}
	return m.streamErr
}

func newTestServer(t *testing.T, model core.ChatModel) (*Server, *session.Store) {
	t.Helper()

	cfg := &config.AppConfig{
		ContextTopK:        4,
		MaxHistoryMessages: 20,
		MaxPromptTokens:    30000,
	}
	store := session.NewStore(nil, cfg.MaxHistoryMessages)
	engine := chat.NewEngine(cfg, store, model, nil)
	return NewServer(":0", engine), store
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedModel{})

	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestServer_ChatStreamsReply(t *testing.T) {
	srv, store := newTestServer(t, &scriptedModel{fragments: []string{"Hel", "lo."}})

	body := `{"session_id":"s1","message":"hi"}`
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "Hello." {
		t.Errorf("body = %q", rec.Body.String())
	}
	if got := rec.Header().Get("X-Session-ID"); got != "s1" {
		t.Errorf("session header = %q", got)
	}

	snap, err := store.Snapshot("s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(snap.Messages))
	}
}

func TestServer_ChatValidation(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedModel{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "blank_message", body: `{"session_id":"s1","message":"  "}`, want: http.StatusBadRequest},
		{name: "malformed_json", body: `{"session_id":`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestServer_ChatGeneratesSessionID(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedModel{fragments: []string{"hi"}})

	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Session-ID") == "" {
		t.Error("expected generated session id in header")
	}
}

func TestServer_HistoryNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedModel{})

	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestServer_HistoryReturnsSnapshot(t *testing.T) {
	srv, store := newTestServer(t, &scriptedModel{})

	release := store.Acquire("s1")
	store.CommitTurn(context.Background(), "s1",
		core.Message{Role: core.RoleUser, Content: "q"},
		core.Message{Role: core.RoleAssistant, Content: "a"},
	)
	release()

	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history/s1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var snap core.SessionSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.SessionID != "s1" || len(snap.Messages) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestServer_SessionsListing(t *testing.T) {
	srv, store := newTestServer(t, &scriptedModel{})

	for _, id := range []string{"a", "b"} {
		release := store.Acquire(id)
		store.CommitTurn(context.Background(), id,
			core.Message{Role: core.RoleUser, Content: "q"},
			core.Message{Role: core.RoleAssistant, Content: "a"},
		)
		release()
	}

	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var payload struct {
		Sessions []core.SessionOverview `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Sessions) != 2 {
		t.Errorf("sessions = %d, want 2", len(payload.Sessions))
	}
}
