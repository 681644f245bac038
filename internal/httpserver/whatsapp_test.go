package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWhatsAppNotFoundBecomesOK(t *testing.T) {
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"no session"}`, http.StatusNotFound)
	}))
	defer mock.Close()

	env := newTestEnv(t, mock.URL, "")

	rec, body := env.request(t, http.MethodGet, "/api/whatsapp-sessions?agentId=agent-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on upstream 404, got %d", rec.Code)
	}
	if body["success"] != false {
		t.Fatalf("expected success false, got %v", body["success"])
	}
	status, ok := body["status"].(map[string]any)
	if !ok {
		t.Fatalf("expected status object, got %T", body["status"])
	}
	if status["state"] != "not_found" {
		t.Fatalf("expected not_found state, got %v", status["state"])
	}
}

func TestWhatsAppDetailEnvelope(t *testing.T) {
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/detail" {
			t.Errorf("unexpected upstream path %s", r.URL.Path)
		}
		if r.URL.Query().Get("agentId") != "agent-2" {
			t.Errorf("unexpected agentId %q", r.URL.Query().Get("agentId"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"traceId": "trace-9",
			"data": map[string]any{
				"status": "qr",
				"qr": map[string]any{
					"base64":      "aGVsbG8gd29ybGQ=",
					"contentType": "image/png",
				},
			},
		})
	}))
	defer mock.Close()

	env := newTestEnv(t, mock.URL, "")

	rec, body := env.request(t, http.MethodGet, "/api/whatsapp-sessions/agent-2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["success"] != true {
		t.Fatalf("expected success true, got %v", body["success"])
	}
	status := body["status"].(map[string]any)
	if status["state"] != "qr" {
		t.Fatalf("expected qr state, got %v", status["state"])
	}
	qrImage, _ := body["qrImage"].(string)
	if !strings.HasPrefix(qrImage, "data:image/png;base64,") {
		t.Fatalf("expected wrapped data URI, got %q", qrImage)
	}
	// Legacy aliases all carry the same base64 payload.
	for _, alias := range []string{"base64", "qrBase64", "qr_base64", "qrCodeBase64"} {
		if body[alias] != "aGVsbG8gd29ybGQ=" {
			t.Fatalf("alias %s mismatch: %v", alias, body[alias])
		}
	}
	if body["traceId"] != "trace-9" {
		t.Fatalf("expected trace-9, got %v", body["traceId"])
	}
	results, ok := body["results"].([]any)
	if !ok || len(results) != 1 {
		t.Fatalf("expected one results entry, got %v", body["results"])
	}

	// The record is cached for subsequent lookups.
	if _, ok := env.sessions.Get("agent-2"); !ok {
		t.Fatal("expected session cached after fetch")
	}
}

func TestWhatsAppListRequiresAgentID(t *testing.T) {
	env := newTestEnv(t, "", "")
	rec, _ := env.request(t, http.MethodGet, "/api/whatsapp-sessions", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWhatsAppCreateValidation(t *testing.T) {
	env := newTestEnv(t, "", "")
	rec, body := env.request(t, http.MethodPost, "/api/whatsapp-sessions", map[string]any{
		"agentId": "agent-3",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without apiKey, got %d", rec.Code)
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "apiKey") {
		t.Fatalf("expected apiKey mention, got %q", msg)
	}
}

func TestWhatsAppCreateAndDelete(t *testing.T) {
	var createBody map[string]any
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sessions/create":
			json.NewDecoder(r.Body).Decode(&createBody)
			json.NewEncoder(w).Encode([]any{map[string]any{
				"data": map[string]any{"status": "pending"},
			}})
		case "/sessions/delete":
			json.NewEncoder(w).Encode(map[string]any{"deleted": true})
		default:
			http.NotFound(w, r)
		}
	}))
	defer mock.Close()

	env := newTestEnv(t, mock.URL, "")

	rec, body := env.request(t, http.MethodPost, "/api/whatsapp-sessions", map[string]any{
		"agentId": "agent-4",
		"api_key": "key-123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, body)
	}
	if createBody["agentId"] != "agent-4" || createBody["apiKey"] != "key-123" {
		t.Fatalf("unexpected upstream create body: %v", createBody)
	}
	if _, ok := env.sessions.Get("agent-4"); !ok {
		t.Fatal("expected session stored after create")
	}

	rec, body = env.request(t, http.MethodDelete, "/api/whatsapp-sessions/agent-4", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["deleted"] != true {
		t.Fatalf("expected deleted true, got %v", body["deleted"])
	}
	if _, ok := env.sessions.Get("agent-4"); ok {
		t.Fatal("expected session removed after delete")
	}
}

func TestWhatsAppQRRequiresAgentID(t *testing.T) {
	env := newTestEnv(t, "", "")
	rec, _ := env.request(t, http.MethodPost, "/api/whatsapp-sessions/qr", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWhatsAppQRFromQueryParam(t *testing.T) {
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "pending",
			"qrBase64": "aGVsbG8=",
		})
	}))
	defer mock.Close()

	env := newTestEnv(t, mock.URL, "")
	rec, body := env.request(t, http.MethodPost, "/api/whatsapp-sessions/qr?agentId=agent-5", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["agentId"] != "agent-5" {
		t.Fatalf("expected agent-5, got %v", body["agentId"])
	}
	if body["qrBase64"] != "aGVsbG8=" {
		t.Fatalf("expected base64 passthrough, got %v", body["qrBase64"])
	}
}

func TestWhatsAppReconnect(t *testing.T) {
	var reconnectBody map[string]any
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/reconnect" {
			t.Errorf("unexpected upstream path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&reconnectBody)
		json.NewEncoder(w).Encode(map[string]any{"message": "reconnecting"})
	}))
	defer mock.Close()

	env := newTestEnv(t, mock.URL, "")
	rec, body := env.request(t, http.MethodPost, "/api/whatsapp-sessions/agent-7/reconnect", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, body)
	}
	if reconnectBody["agentId"] != "agent-7" {
		t.Fatalf("unexpected upstream reconnect body: %v", reconnectBody)
	}
	status, ok := body["status"].(map[string]any)
	if !ok || status["state"] != "pending" {
		t.Fatalf("expected pending state while the daemon relinks, got %v", body["status"])
	}
	// Reconnect responses carry no raw passthrough.
	if _, present := body["raw"]; present {
		t.Fatalf("reconnect must not echo the raw upstream payload: %v", body["raw"])
	}
	if _, ok := env.sessions.Get("agent-7"); !ok {
		t.Fatal("expected session cached after reconnect")
	}
}

func TestWhatsAppStatusEnvelope(t *testing.T) {
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/status" {
			t.Errorf("unexpected upstream path %s", r.URL.Path)
		}
		if r.URL.Query().Get("agentId") != "agent-8" {
			t.Errorf("unexpected agentId %q", r.URL.Query().Get("agentId"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "connected",
			"isActive": true,
		})
	}))
	defer mock.Close()

	env := newTestEnv(t, mock.URL, "")
	rec, body := env.request(t, http.MethodGet, "/api/whatsapp-sessions/status?agentId=agent-8", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, body)
	}
	status, ok := body["status"].(map[string]any)
	if !ok || status["state"] != "connected" {
		t.Fatalf("expected connected state, got %v", body["status"])
	}
	raw, ok := body["raw"].(map[string]any)
	if !ok || raw["status"] != "connected" {
		t.Fatalf("expected raw upstream payload, got %v", body["raw"])
	}
}

func TestWhatsAppStatusNotFoundBecomesOK(t *testing.T) {
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"no session"}`, http.StatusNotFound)
	}))
	defer mock.Close()

	env := newTestEnv(t, mock.URL, "")
	rec, body := env.request(t, http.MethodGet, "/api/whatsapp-sessions/status?agentId=agent-9", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on upstream 404, got %d", rec.Code)
	}
	status, _ := body["status"].(map[string]any)
	if status["state"] != "not_found" {
		t.Fatalf("expected not_found state, got %v", status["state"])
	}
}

func TestWhatsAppStatusRequiresAgentID(t *testing.T) {
	env := newTestEnv(t, "", "")
	rec, _ := env.request(t, http.MethodGet, "/api/whatsapp-sessions/status", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWhatsAppUpstreamErrorPassthrough(t *testing.T) {
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"detail":"daemon restarting"}`))
	}))
	defer mock.Close()

	env := newTestEnv(t, mock.URL, "")
	rec, body := env.request(t, http.MethodGet, "/api/whatsapp-sessions?agentId=agent-6", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 passthrough, got %d", rec.Code)
	}
	if body["message"] != "daemon restarting" {
		t.Fatalf("expected upstream detail, got %v", body["message"])
	}
}
