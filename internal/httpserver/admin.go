package httpserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"agent-relay/internal/repo"
	"agent-relay/internal/store"
)

// adminHandler exposes operator debug views: the most recent payment
// update and the persisted webhook audit trail. These sit next to
// /healthz and /metrics outside the public /api surface.
type adminHandler struct {
	orders     *store.OrderStore
	repository repo.Repository
	logger     *slog.Logger
}

func newAdminHandler(orders *store.OrderStore, repository repo.Repository, logger *slog.Logger) *adminHandler {
	return &adminHandler{
		orders:     orders,
		repository: repository,
		logger:     logger.With("component", "admin_handler"),
	}
}

// handleLatestOrder answers GET /admin/latest-order with the most
// recently stored payment update, or null when nothing arrived yet.
func (h *adminHandler) handleLatestOrder(w http.ResponseWriter, r *http.Request) {
	latest := h.orders.Latest()
	if latest == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "latest": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "latest": latest})
}

// handleWebhookEvents answers GET /admin/webhook-events?source=&limit=.
func (h *adminHandler) handleWebhookEvents(w http.ResponseWriter, r *http.Request) {
	if h.repository == nil {
		writeError(w, http.StatusServiceUnavailable, "audit repository unavailable", nil)
		return
	}

	query := r.URL.Query()
	limit := 50
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}

	events, err := h.repository.ListRecentWebhookEvents(r.Context(), query.Get("source"), limit)
	if err != nil {
		h.logger.Error("failed listing webhook events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed listing webhook events", nil)
		return
	}

	entries := make([]map[string]any, 0, len(events))
	for _, event := range events {
		entries = append(entries, map[string]any{
			"id":             event.ID,
			"source":         event.Source,
			"correlationKey": event.CorrelationKey,
			"payload":        event.Payload,
			"receivedAt":     event.ReceivedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"count":  len(entries),
		"events": entries,
	})
}
