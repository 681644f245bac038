package httpserver

import (
	"log/slog"
	"maps"
	"net/http"
	"time"

	"agent-relay/internal/metrics"
	"agent-relay/internal/normalize"
	"agent-relay/internal/store"
)

// paymentHandler reconciles payment status updates arriving from the
// n8n relay (POST) and from provider redirects (GET) into the order
// store, and answers browser polls from the same store.
type paymentHandler struct {
	orders  *store.OrderStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *Auditor
}

func newPaymentHandler(orders *store.OrderStore, logger *slog.Logger, m *metrics.Metrics, audit *Auditor) *paymentHandler {
	return &paymentHandler{
		orders:  orders,
		logger:  logger.With("component", "payment_handler"),
		metrics: m,
		audit:   audit,
	}
}

// handleWebhook ingests a status payload. The body may be a single
// object or a one-element array; the order id may arrive directly or
// via the client-generated order suffix.
func (h *paymentHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, raw, err := readPayload(r)
	if err != nil || len(payload) == 0 {
		h.metrics.WebhookDeliveries.WithLabelValues("payment", "invalid").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Invalid JSON payload",
		})
		return
	}

	orderID := normalize.FirstString(payload, "order_id", "orderId")
	suffix := normalize.FirstString(payload, "order_suffix", "orderSuffix")
	if orderID == "" && suffix != "" {
		if mapped, ok := h.orders.ResolveSuffix(suffix); ok {
			orderID = mapped
		}
	}

	correlation := orderID
	if correlation == "" {
		correlation = suffix
	}
	h.audit.Record("payment", correlation, raw)

	source := normalize.FirstString(payload, "source")

	if orderID == "" {
		if source == "" {
			source = "n8n"
		}
		h.logger.Warn("payment payload missing order_id", "order_suffix", suffix, "source", source)
		if suffix != "" {
			// Remember the suffix so a later update carrying the real
			// order id can still bind it.
			h.orders.BindSuffix(suffix, "")
		}
		h.metrics.WebhookDeliveries.WithLabelValues("payment", "unresolved").Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":            true,
			"order_id":           nil,
			"transaction_status": nil,
			"data": map[string]any{
				"received_at":  time.Now().UTC().Format(time.RFC3339),
				"order_suffix": nullableString(suffix),
				"source":       source,
			},
		})
		return
	}

	// The route default applies only when neither the payload nor the
	// existing record names a source; an explicit source always wins.
	if source == "" {
		if existing, ok := h.orders.Get(orderID); !ok || existing.Source == "" {
			source = "n8n"
		}
	}
	record := h.orders.Upsert(orderID, payload, source, suffix)

	// A bare confirmation payload carries no transaction_status of its
	// own; treat it as settled.
	if normalize.FirstBool(payload, "success") && normalize.FirstBool(payload, "stored") && record.TransactionStatus == "" {
		record = h.orders.Upsert(orderID, map[string]any{"transaction_status": "settlement"}, source, suffix)
	}

	switch normalize.ClassifyTransactionStatus(record.TransactionStatus) {
	case normalize.PaymentSettled, normalize.PaymentFailed:
		if h.orders.MarkFinalized(orderID) {
			h.logger.Info("order reached terminal status",
				"order_id", orderID, "transaction_status", record.TransactionStatus)
		}
	}

	kind := "generic"
	if normalize.HasTransactionFields(payload) {
		kind = "transaction"
	}
	h.logger.Info("stored payment update", "order_id", orderID, "kind", kind, "source", source)
	h.metrics.WebhookDeliveries.WithLabelValues("payment", "stored").Inc()

	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"stored":             true,
		"order_id":           orderID,
		"transaction_status": nullableString(record.TransactionStatus),
		"data":               orderData(record),
	})
}

// handlePoll answers browser polls and provider redirects. Query
// parameters are merged into the record so redirect landings update
// state too.
func (h *paymentHandler) handlePoll(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	orderID := firstQuery(query.Get("order_id"), query.Get("orderId"))
	suffix := firstQuery(query.Get("order_suffix"), query.Get("orderSuffix"))
	if orderID == "" && suffix != "" {
		if mapped, ok := h.orders.ResolveSuffix(suffix); ok {
			orderID = mapped
		}
	}

	if orderID == "" {
		var data any
		if suffix != "" {
			data = map[string]any{
				"order_suffix": suffix,
				"received_at":  time.Now().UTC().Format(time.RFC3339),
				"source":       "redirect",
			}
		}
		h.metrics.PollRequests.WithLabelValues("payment", "miss").Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":            true,
			"order_id":           nil,
			"transaction_status": nil,
			"data":               data,
		})
		return
	}

	patch := make(map[string]any, len(query))
	for key := range query {
		patch[key] = query.Get(key)
	}
	source := query.Get("source")
	if source == "" {
		if existing, ok := h.orders.Get(orderID); !ok || existing.Source == "" {
			source = "redirect"
		}
	}
	record := h.orders.Upsert(orderID, patch, source, suffix)

	h.metrics.PollRequests.WithLabelValues("payment", "hit").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"order_id":           orderID,
		"transaction_status": nullableString(record.TransactionStatus),
		"data":               orderData(record),
	})
}

// orderData flattens a record into the wire shape pollers expect: the
// merged passthrough fields with the canonical columns layered on top.
func orderData(record store.OrderRecord) map[string]any {
	data := make(map[string]any, len(record.Fields)+4)
	maps.Copy(data, record.Fields)
	data["transaction_status"] = nullableString(record.TransactionStatus)
	data["order_suffix"] = nullableString(record.OrderSuffix)
	data["received_at"] = record.ReceivedAt.UTC().Format(time.RFC3339)
	data["source"] = record.Source
	return data
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func firstQuery(candidates ...string) string {
	for _, candidate := range candidates {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
