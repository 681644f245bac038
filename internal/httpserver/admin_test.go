package httpserver

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agent-relay/internal/repo"
	"agent-relay/internal/store"
)

// fakeAuditRepo is an in-memory repo.Repository for handler tests.
type fakeAuditRepo struct {
	events []repo.WebhookEvent
}

func (f *fakeAuditRepo) Close()                                     {}
func (f *fakeAuditRepo) Ping(context.Context) error                 { return nil }
func (f *fakeAuditRepo) RunMigrations(context.Context, fs.FS) error { return nil }

func (f *fakeAuditRepo) InsertWebhookEvent(_ context.Context, event repo.WebhookEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditRepo) ListRecentWebhookEvents(_ context.Context, source string, limit int) ([]repo.WebhookEvent, error) {
	var out []repo.WebhookEvent
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if source != "" && f.events[i].Source != source {
			continue
		}
		out = append(out, f.events[i])
	}
	return out, nil
}

func TestAdminLatestOrderReflectsMostRecentUpdate(t *testing.T) {
	env := newTestEnv(t, "", "")

	rec, body := env.request(t, http.MethodGet, "/admin/latest-order", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["latest"] != nil {
		t.Fatalf("expected null latest before any update, got %v", body["latest"])
	}

	env.request(t, http.MethodPost, "/api/v1/payment/status", map[string]any{
		"order_id": "ORDER-A", "transaction_status": "pending",
	})
	env.request(t, http.MethodPost, "/api/v1/payment/status", map[string]any{
		"order_id": "ORDER-B", "transaction_status": "settlement",
	})

	rec, body = env.request(t, http.MethodGet, "/admin/latest-order", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	latest, ok := body["latest"].(map[string]any)
	if !ok {
		t.Fatalf("expected latest object, got %T", body["latest"])
	}
	if latest["order_id"] != "ORDER-B" || latest["transaction_status"] != "settlement" {
		t.Fatalf("unexpected latest order: %v", latest)
	}
}

func TestAdminWebhookEventsListsAuditTrail(t *testing.T) {
	repository := &fakeAuditRepo{}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repository.events = []repo.WebhookEvent{
		{ID: "1", Source: "payment", CorrelationKey: "ORDER-1", Payload: json.RawMessage(`{"transaction_status":"pending"}`), ReceivedAt: now},
		{ID: "2", Source: "interview", CorrelationKey: "sess-1", ReceivedAt: now.Add(time.Minute)},
		{ID: "3", Source: "payment", CorrelationKey: "ORDER-1", Payload: json.RawMessage(`{"transaction_status":"settlement"}`), ReceivedAt: now.Add(2 * time.Minute)},
	}
	handler := newAdminHandler(store.NewOrderStore(nil, testLogger()), repository, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/admin/webhook-events?source=payment&limit=10", nil)
	rec := httptest.NewRecorder()
	handler.handleWebhookEvents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["count"] != float64(2) {
		t.Fatalf("expected 2 payment events, got %v", body["count"])
	}
	events, ok := body["events"].([]any)
	if !ok || len(events) != 2 {
		t.Fatalf("expected events list of 2, got %v", body["events"])
	}
	first, _ := events[0].(map[string]any)
	if first["id"] != "3" {
		t.Fatalf("expected newest event first, got %v", first)
	}
	payload, ok := first["payload"].(map[string]any)
	if !ok || payload["transaction_status"] != "settlement" {
		t.Fatalf("expected raw payload passthrough, got %v", first["payload"])
	}
}

func TestAdminWebhookEventsRejectsBadLimit(t *testing.T) {
	handler := newAdminHandler(store.NewOrderStore(nil, testLogger()), &fakeAuditRepo{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/admin/webhook-events?limit=zero", nil)
	rec := httptest.NewRecorder()
	handler.handleWebhookEvents(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminWebhookEventsWithoutRepository(t *testing.T) {
	env := newTestEnv(t, "", "")

	rec, _ := env.request(t, http.MethodGet, "/admin/webhook-events", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a configured repository, got %d", rec.Code)
	}
}
