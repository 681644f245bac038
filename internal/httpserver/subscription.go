package httpserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"agent-relay/internal/metrics"
	"agent-relay/internal/upstream"
)

// subscriptionHandler bridges the dashboard backend: a typed api-key
// lookup plus a generic passthrough for everything else under
// /api/proxy/.
type subscriptionHandler struct {
	backend *upstream.BackendClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func newSubscriptionHandler(backend *upstream.BackendClient, logger *slog.Logger, m *metrics.Metrics) *subscriptionHandler {
	return &subscriptionHandler{
		backend: backend,
		logger:  logger.With("component", "subscription_handler"),
		metrics: m,
	}
}

// handleAPIKey answers GET /api/v1/subscription/api-key: look the key
// up on the subscription, minting one when the subscription has none.
func (h *subscriptionHandler) handleAPIKey(w http.ResponseWriter, r *http.Request) {
	if h.backend == nil || !h.backend.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "Backend is not configured", nil)
		return
	}

	token := bearerToken(r)
	creds, err := h.backend.Subscription(r.Context(), token)
	if err != nil && !errors.Is(err, upstream.ErrNotFound) {
		h.respondBackendError(w, err)
		return
	}

	if creds == nil || creds.APIKey == "" {
		creds, err = h.backend.GenerateAPIKey(r.Context(), token)
		if err != nil {
			h.respondBackendError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"api_key":   nullableString(creds.APIKey),
		"plan_code": nullableString(creds.PlanCode),
	})
}

// handleProxy relays /api/proxy/* to the backend's /api/v1 surface.
func (h *subscriptionHandler) handleProxy(w http.ResponseWriter, r *http.Request) {
	if h.backend == nil || !h.backend.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "Backend is not configured", nil)
		return
	}

	suffix := strings.TrimPrefix(r.URL.Path, "/api/proxy")
	if suffix == "" {
		suffix = "/"
	}

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}

	res, err := h.backend.Forward(r.Context(), r.Method, "/api/v1"+suffix, r.URL.RawQuery, r.Header, body)
	if err != nil {
		h.logger.Error("proxy request failed", "error", err, "path", suffix)
		h.metrics.Errors.WithLabelValues("proxy").Inc()
		writeError(w, http.StatusBadGateway, "Failed to reach backend", nil)
		return
	}
	defer res.Body.Close()

	for key, vals := range res.Header {
		if strings.EqualFold(key, "Content-Length") {
			continue
		}
		for _, val := range vals {
			w.Header().Add(key, val)
		}
	}
	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		h.logger.Warn("failed streaming proxy response", "error", err, "path", suffix)
	}
}

func (h *subscriptionHandler) respondBackendError(w http.ResponseWriter, err error) {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		writeError(w, upErr.StatusCode, upErr.Detail, map[string]any{"raw": upErr.Raw})
		return
	}
	if errors.Is(err, upstream.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Subscription not found", nil)
		return
	}
	h.logger.Error("backend request failed", "error", err)
	h.metrics.Errors.WithLabelValues("subscription_handler").Inc()
	writeError(w, http.StatusBadGateway, "Failed to reach backend", nil)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
