package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"agent-relay/internal/metrics"
	"agent-relay/internal/normalize"
	"agent-relay/internal/store"
	"agent-relay/internal/upstream"

	"github.com/go-chi/chi/v5"
)

// whatsappHandler proxies the WhatsApp session microservice and keeps
// the session cache warm so browsers always see a stable envelope no
// matter which payload shape the daemon produced.
type whatsappHandler struct {
	sessions *store.WhatsAppStore
	client   *upstream.WhatsAppClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func newWhatsAppHandler(sessions *store.WhatsAppStore, client *upstream.WhatsAppClient, logger *slog.Logger, m *metrics.Metrics) *whatsappHandler {
	return &whatsappHandler{
		sessions: sessions,
		client:   client,
		logger:   logger.With("component", "whatsapp_handler"),
		metrics:  m,
	}
}

// handleList answers GET /api/whatsapp-sessions?agentId=.
func (h *whatsappHandler) handleList(w http.ResponseWriter, r *http.Request) {
	h.sessions.Prune()
	agentID := firstQuery(r.URL.Query().Get("agentId"), r.URL.Query().Get("agent_id"))
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agentId query parameter is required", nil)
		return
	}
	h.fetchAndRespond(w, r, agentID)
}

// handleGet answers GET /api/whatsapp-sessions/{agentId}.
func (h *whatsappHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.sessions.Prune()
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agentId parameter is required", nil)
		return
	}
	h.fetchAndRespond(w, r, agentID)
}

// handleQR answers POST /api/whatsapp-sessions/qr; the agent id may
// arrive in the body or the query string.
func (h *whatsappHandler) handleQR(w http.ResponseWriter, r *http.Request) {
	payload, _, err := readPayload(r)
	if err != nil {
		payload = map[string]any{}
	}
	agentID := normalize.FirstString(payload, "agentId", "agent_id", "agent")
	if agentID == "" {
		query := r.URL.Query()
		agentID = firstQuery(query.Get("agentId"), query.Get("agent_id"), query.Get("agent"))
	}
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agentId is required to fetch WhatsApp QR", nil)
		return
	}
	h.sessions.Prune()
	h.fetchAndRespond(w, r, agentID)
}

// handleCreate answers POST /api/whatsapp-sessions.
func (h *whatsappHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	payload, _, err := readPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest,
			"Invalid JSON payload. Ensure the request body is valid JSON or set Content-Type: application/json.",
			map[string]any{"detail": err.Error()})
		return
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "Request payload must be a JSON object containing agentId and apiKey.", nil)
		return
	}

	agentID := normalize.FirstString(payload, "agentId", "agent_id", "agent")
	agentName := normalize.FirstString(payload, "agentName", "agent_name")
	apiKey := normalize.FirstString(payload, "apiKey", "api_key", "apikey", "Apikey", "ApiKey")
	if agentID == "" || apiKey == "" {
		writeError(w, http.StatusBadRequest, "WhatsApp session requires agentId and apiKey.", nil)
		return
	}

	h.sessions.Prune()

	remote, err := h.client.CreateSession(r.Context(), upstream.CreateSessionRequest{
		AgentID:   agentID,
		AgentName: agentName,
		APIKey:    apiKey,
	})
	if err != nil {
		h.respondUpstreamError(w, agentID, "create", err)
		return
	}

	record := h.upsertFromPayload(agentID, remote)
	writeJSON(w, http.StatusOK, sessionEnvelope(record, remote))
}

// handleReconnect answers POST /api/whatsapp-sessions/{agentId}/reconnect.
// The daemon restarts the link; until it reports back the session state
// is pending, so the response omits the raw passthrough that polls get.
func (h *whatsappHandler) handleReconnect(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agentId parameter is required", nil)
		return
	}

	h.sessions.Prune()

	remote, err := h.client.Reconnect(r.Context(), agentID)
	if err != nil {
		h.respondUpstreamError(w, agentID, "reconnect", err)
		return
	}

	record := h.upsertFromPayload(agentID, remote)
	envelope := sessionEnvelope(record, remote)
	delete(envelope, "raw")
	writeJSON(w, http.StatusOK, envelope)
}

// handleStatus answers GET /api/whatsapp-sessions/status?agentId=,
// relaying the daemon's live status check instead of the detail view.
func (h *whatsappHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	agentID := firstQuery(r.URL.Query().Get("agentId"), r.URL.Query().Get("agent_id"))
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agentId query parameter is required", nil)
		return
	}

	h.sessions.Prune()

	remote, err := h.client.SessionStatus(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			h.metrics.PollRequests.WithLabelValues("whatsapp", "not_found").Inc()
			writeJSON(w, http.StatusOK, notFoundEnvelope())
			return
		}
		h.respondUpstreamError(w, agentID, "status", err)
		return
	}

	record := h.upsertFromPayload(agentID, remote)
	h.metrics.PollRequests.WithLabelValues("whatsapp", "hit").Inc()
	writeJSON(w, http.StatusOK, sessionEnvelope(record, remote))
}

// handleDelete answers DELETE /api/whatsapp-sessions/{agentId}.
func (h *whatsappHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agentId parameter is required", nil)
		return
	}

	h.sessions.Prune()

	remote, err := h.client.DeleteSession(r.Context(), agentID)
	if err != nil && !errors.Is(err, upstream.ErrNotFound) {
		h.respondUpstreamError(w, agentID, "delete", err)
		return
	}

	h.sessions.Delete(agentID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"agentId": agentID,
		"deleted": true,
		"data":    remote,
	})
}

// fetchAndRespond proxies the detail endpoint and refreshes the cache.
// An upstream not-found answers 200 with a not_found state so pollers
// keep a single success path.
func (h *whatsappHandler) fetchAndRespond(w http.ResponseWriter, r *http.Request, agentID string) {
	remote, err := h.client.SessionDetail(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			h.metrics.PollRequests.WithLabelValues("whatsapp", "not_found").Inc()
			writeJSON(w, http.StatusOK, notFoundEnvelope())
			return
		}
		h.respondUpstreamError(w, agentID, "detail", err)
		return
	}

	record := h.upsertFromPayload(agentID, remote)
	h.metrics.PollRequests.WithLabelValues("whatsapp", "hit").Inc()
	writeJSON(w, http.StatusOK, sessionEnvelope(record, remote))
}

func (h *whatsappHandler) upsertFromPayload(agentID string, remote map[string]any) store.SessionRecord {
	data := normalize.UnwrapData(remote)
	traceID := normalize.FirstString(remote, "traceId", "trace_id")
	if traceID == "" {
		traceID = normalize.FirstString(data, "traceId", "trace_id")
	}

	record := store.NewSessionRecord(agentID, mergeSessionPayload(remote, data), traceID, h.sessions.Now())
	stored := h.sessions.Upsert(record)
	h.metrics.StoreEntries.WithLabelValues("whatsapp").Set(float64(len(h.sessions.List())))
	return stored
}

// mergeSessionPayload flattens the nested data object over the outer
// envelope so normalization sees every field variant at the top level.
func mergeSessionPayload(remote, data map[string]any) map[string]any {
	if len(data) == 0 {
		return remote
	}
	merged := make(map[string]any, len(remote)+len(data))
	for key, val := range remote {
		merged[key] = val
	}
	for key, val := range data {
		merged[key] = val
	}
	return merged
}

func (h *whatsappHandler) respondUpstreamError(w http.ResponseWriter, agentID, op string, err error) {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		writeError(w, upErr.StatusCode, upErr.Detail, map[string]any{"raw": upErr.Raw})
		return
	}
	if errors.Is(err, upstream.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}
	h.logger.Error("whatsapp session service unreachable", "error", err, "agent_id", agentID, "op", op)
	h.metrics.Errors.WithLabelValues("whatsapp_handler").Inc()
	writeError(w, http.StatusBadGateway, "Failed to reach WhatsApp session service", nil)
}

// sessionEnvelope builds the stable response shape. The QR fields are
// duplicated across the legacy aliases older frontends still read.
func sessionEnvelope(record store.SessionRecord, raw map[string]any) map[string]any {
	state := record.Status
	if state == "" {
		if record.IsActive {
			state = "active"
		} else {
			state = "pending"
		}
	}

	updatedAt := record.QRUpdatedAt
	if updatedAt.IsZero() {
		updatedAt = record.ReceivedAt
	}

	envelope := map[string]any{
		"success": true,
		"stored":  1,
		"agentId": record.AgentID,
		"status": map[string]any{
			"state":     state,
			"updatedAt": updatedAt.UTC().Format(time.RFC3339),
		},
		"isActive": record.IsActive,
		"traceId":  nullableString(record.TraceID),
		"results":  []any{sessionEntry(record, state)},
		"data":     record,
	}
	addQRFields(envelope, record)
	if raw != nil {
		envelope["raw"] = raw
	} else {
		envelope["raw"] = record.Raw
	}
	return envelope
}

func sessionEntry(record store.SessionRecord, state string) map[string]any {
	entry := map[string]any{
		"agentId":    record.AgentID,
		"status":     state,
		"isActive":   record.IsActive,
		"receivedAt": record.ReceivedAt.UTC().Format(time.RFC3339),
		"traceId":    nullableString(record.TraceID),
		"qr": map[string]any{
			"base64":      nullableString(record.QRBase64),
			"contentType": nullableString(record.QRContentType),
			"updatedAt":   record.QRUpdatedAt.UTC().Format(time.RFC3339),
			"expiresAt":   nullableTime(record.QRExpiresAt),
			"url":         nullableString(record.QRURL),
		},
	}
	addQRFields(entry, record)
	return entry
}

func addQRFields(target map[string]any, record store.SessionRecord) {
	base64 := nullableString(record.QRBase64)
	contentType := nullableString(record.QRContentType)
	target["base64"] = base64
	target["qrBase64"] = base64
	target["qr_base64"] = base64
	target["qrCodeBase64"] = base64
	target["contentType"] = contentType
	target["qrContentType"] = contentType
	target["qr_content_type"] = contentType
	target["qrImage"] = nullableString(record.QRImage)
	target["qrUrl"] = nullableString(record.QRURL)
	target["qrUpdatedAt"] = record.QRUpdatedAt.UTC().Format(time.RFC3339)
	target["qrExpiresAt"] = nullableTime(record.QRExpiresAt)
	target["qrExpiresInSeconds"] = record.QRExpiresInSeconds
}

func notFoundEnvelope() map[string]any {
	return map[string]any{
		"success": false,
		"status": map[string]any{
			"state":     "not_found",
			"updatedAt": time.Now().UTC().Format(time.RFC3339),
		},
		"message": "Session not found",
	}
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339)
}
