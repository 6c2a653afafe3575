package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bautibadino/wp-api/internal/client"
	"github.com/bautibadino/wp-api/internal/domain"
	"github.com/bautibadino/wp-api/internal/realtime"
	"github.com/bautibadino/wp-api/internal/session"
)

type stubClient struct {
	mu        sync.Mutex
	events    chan domain.Event
	destroyed bool
	sendDelay time.Duration
}

func newStubClient() *stubClient {
	return &stubClient{events: make(chan domain.Event, 8)}
}

func (s *stubClient) Launch(ctx context.Context) error { return nil }

func (s *stubClient) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.destroyed {
		s.destroyed = true
		close(s.events)
	}
	return nil
}

func (s *stubClient) SendMessage(ctx context.Context, recipient, body string) (string, error) {
	if s.sendDelay > 0 {
		time.Sleep(s.sendDelay)
	}
	return "msg-42", nil
}

func (s *stubClient) ResolveRecipient(ctx context.Context, id string) (client.RecipientInfo, error) {
	if strings.HasPrefix(id, "404") {
		return client.RecipientInfo{}, client.ErrRecipientNotFound
	}
	return client.RecipientInfo{ID: id + "@c.us", PushName: "tester"}, nil
}

func (s *stubClient) ListChats(ctx context.Context, limit int) ([]client.ChatSummary, error) {
	return []client.ChatSummary{{ID: "chat-1", Name: "group", IsGroup: true}}, nil
}

func (s *stubClient) Events() <-chan domain.Event { return s.events }

type testEnv struct {
	handler http.Handler
	ctrl    *session.Controller
	hub     *realtime.Hub

	mu      sync.Mutex
	clients []*stubClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{hub: realtime.NewHub()}

	factory := func(cfg client.Config) (client.Client, error) {
		c := newStubClient()
		env.mu.Lock()
		env.clients = append(env.clients, c)
		env.mu.Unlock()
		return c, nil
	}

	env.ctrl = session.New(factory, client.Config{}, session.Config{
		SendTimeout:      time.Second,
		LaunchRetryDelay: 30 * time.Millisecond,
		AuthRetryDelay:   30 * time.Millisecond,
		RestartDelay:     30 * time.Millisecond,
		PairingTTL:       120 * time.Second,
	}, nil)
	t.Cleanup(func() { env.ctrl.Shutdown(context.Background()) })
	env.ctrl.SetPhaseListener(env.hub)

	env.handler = NewHandler(env.ctrl, env.hub, nil).Routes()
	return env
}

func (e *testEnv) lastClient() *stubClient {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.clients) == 0 {
		return nil
	}
	return e.clients[len(e.clients)-1]
}

func (e *testEnv) makeReady(t *testing.T) {
	t.Helper()
	e.ctrl.Launch()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c := e.lastClient(); c != nil {
			c.events <- domain.NewReadyEvent()
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	for time.Now().Before(deadline) {
		if e.ctrl.Ready() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("controller never became ready")
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return m
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["success"] != true {
		t.Error("expected success true")
	}
	if body["ready"] != false {
		t.Error("expected ready false before pairing")
	}
	if body["phase"] != "uninitialized" {
		t.Errorf("expected phase uninitialized, got %v", body["phase"])
	}
}

func TestRootListsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	endpoints, ok := body["endpoints"].(map[string]any)
	if !ok || len(endpoints) == 0 {
		t.Error("expected endpoint directory")
	}
}

func TestNotFoundReturnsDirectory(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/api/nope", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["success"] != false {
		t.Error("expected success false")
	}
	if _, ok := body["endpoints"].(map[string]any); !ok {
		t.Error("expected endpoint directory in 404 body")
	}
}

func TestPairingPending(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/api/qr", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 while pending, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "pending" {
		t.Errorf("expected pending status, got %v", body["status"])
	}
}

func TestPairingAvailable(t *testing.T) {
	env := newTestEnv(t)
	env.ctrl.Launch()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && env.lastClient() == nil {
		time.Sleep(5 * time.Millisecond)
	}
	env.lastClient().events <- domain.NewPairingCodeEvent("pairing-123")
	for time.Now().Before(deadline) && env.ctrl.Phase() != domain.PhaseAwaitingPairing {
		time.Sleep(5 * time.Millisecond)
	}

	rec := env.request(t, http.MethodGet, "/api/qr", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["qr"] != "pairing-123" {
		t.Errorf("expected pairing code in body, got %v", body["qr"])
	}
	if body["expiresAt"] == nil {
		t.Error("expected expiry instant")
	}
}

func TestPairingAlreadyConnected(t *testing.T) {
	env := newTestEnv(t)
	env.makeReady(t)

	rec := env.request(t, http.MethodGet, "/api/qr", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "already_connected" {
		t.Errorf("expected already_connected, got %v", body["status"])
	}
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "missing number", body: map[string]string{"message": "hi"}},
		{name: "missing message", body: map[string]string{"number": "549123"}},
		{name: "blank fields", body: map[string]string{"number": " ", "message": " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(t, http.MethodPost, "/api/send-message", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			body := decode(t, rec)
			if body["success"] != false {
				t.Error("expected success false")
			}
		})
	}
}

func TestSendMessageNotReady(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, "/api/send-message", map[string]string{
		"number": "5491234567890", "message": "hi",
	})

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["error"] == nil {
		t.Error("expected raw error text in body")
	}
}

func TestSendMessageSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.makeReady(t)

	rec := env.request(t, http.MethodPost, "/api/send-message", map[string]string{
		"number": "5491234567890", "message": "hi",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["messageId"] != "msg-42" {
		t.Errorf("expected messageId msg-42, got %v", body["messageId"])
	}
}

func TestSendMessageClientDisconnect(t *testing.T) {
	env := newTestEnv(t)
	env.makeReady(t)
	env.lastClient().sendDelay = 500 * time.Millisecond

	raw, err := json.Marshal(map[string]string{"number": "5491234567890", "message": "hi"})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/send-message", bytes.NewReader(raw)).WithContext(ctx)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestTimeout {
		t.Fatalf("expected 408 for abandoned request, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["success"] != false {
		t.Error("expected success false")
	}
}

func TestNumberInfo(t *testing.T) {
	env := newTestEnv(t)
	env.makeReady(t)

	rec := env.request(t, http.MethodGet, "/api/number-info/5491234567890", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["exists"] != true {
		t.Error("expected exists true")
	}

	rec = env.request(t, http.MethodGet, "/api/number-info/404555", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unregistered number, got %d", rec.Code)
	}
	body = decode(t, rec)
	if body["exists"] != false {
		t.Error("expected exists false")
	}
}

func TestListChats(t *testing.T) {
	env := newTestEnv(t)
	env.makeReady(t)

	rec := env.request(t, http.MethodGet, "/api/chats?limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["count"] != float64(1) {
		t.Errorf("expected count 1, got %v", body["count"])
	}
}

func TestListChatsInvalidLimit(t *testing.T) {
	env := newTestEnv(t)
	env.makeReady(t)

	rec := env.request(t, http.MethodGet, "/api/chats?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRestart(t *testing.T) {
	env := newTestEnv(t)
	env.makeReady(t)

	rec := env.request(t, http.MethodPost, "/api/restart", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := env.ctrl.Phase(); got != domain.PhaseUninitialized {
		t.Errorf("expected uninitialized right after restart, got %s", got)
	}
}
