package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"agent-relay/internal/metrics"
	"agent-relay/internal/store"
	"agent-relay/internal/upstream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryMirror stands in for Redis so tests can wire two environments
// to one shared mirror.
type memoryMirror struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryMirror() *memoryMirror {
	return &memoryMirror{entries: make(map[string][]byte)}
}

func (m *memoryMirror) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = encoded
	return nil
}

func (m *memoryMirror) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	encoded, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(encoded, dest)
}

func (m *memoryMirror) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

type testEnv struct {
	handler    http.Handler
	orders     *store.OrderStore
	sessions   *store.WhatsAppStore
	interviews *store.InterviewStore
}

// newTestEnv wires a full server against the given upstream base URLs.
// Empty URLs leave the respective client pointing at a default nobody
// listens on, which is fine for tests that never call it.
func newTestEnv(t *testing.T, whatsappURL, backendURL string) *testEnv {
	t.Helper()
	return newMirroredTestEnv(t, whatsappURL, backendURL, nil)
}

// newMirroredTestEnv additionally shares a store mirror, so tests can
// model a process restart by wiring two environments to one mirror.
func newMirroredTestEnv(t *testing.T, whatsappURL, backendURL string, mirror store.Mirror) *testEnv {
	t.Helper()
	logger := testLogger()
	m := metrics.Registry("test")

	orders := store.NewOrderStore(mirror, logger)
	sessions := store.NewWhatsAppStore(store.DefaultWhatsAppTTL, mirror, logger)
	interviews := store.NewInterviewStore(store.DefaultInterviewTTL, mirror, logger)

	waClient := upstream.NewWhatsAppClient(upstream.WhatsAppConfig{BaseURL: whatsappURL}, logger, m)
	backendClient := upstream.NewBackendClient(upstream.BackendConfig{BaseURL: backendURL}, logger, m)

	srv := New(":0", logger, m, Dependencies{
		Orders:     orders,
		Sessions:   sessions,
		Interviews: interviews,
		WhatsApp:   waClient,
		Backend:    backendClient,
		Audit:      NewAuditor(nil, logger, m),
	}, "")

	return &testEnv{
		handler:    srv.Handler(),
		orders:     orders,
		sessions:   sessions,
		interviews: interviews,
	}
}

func (e *testEnv) request(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}
