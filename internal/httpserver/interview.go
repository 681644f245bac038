package httpserver

import (
	"log/slog"
	"net/http"
	"strings"

	"agent-relay/internal/metrics"
	"agent-relay/internal/normalize"
	"agent-relay/internal/store"
)

// interviewHandler bridges the n8n template-interview workflow to the
// browser: PUT registers a pending session before the interview
// starts, POST receives the completion webhook, GET answers polls.
type interviewHandler struct {
	interviews *store.InterviewStore
	logger     *slog.Logger
	metrics    *metrics.Metrics
	audit      *Auditor
}

func newInterviewHandler(interviews *store.InterviewStore, logger *slog.Logger, m *metrics.Metrics, audit *Auditor) *interviewHandler {
	return &interviewHandler{
		interviews: interviews,
		logger:     logger.With("component", "interview_handler"),
		metrics:    m,
		audit:      audit,
	}
}

// handleRegister answers PUT /api/webhook/n8n-template.
func (h *interviewHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	h.interviews.Prune()

	payload, _, err := readPayload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid JSON payload"})
		return
	}

	sessionID := normalize.FirstString(payload, "sessionId", "session_id")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Missing sessionId"})
		return
	}
	templateID := normalize.FirstString(payload, "templateId", "template_id")

	h.interviews.Register(sessionID, templateID)
	h.logger.Info("registered pending interview session", "session_id", sessionID, "template_id", templateID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleComplete answers POST /api/webhook/n8n-template. n8n payload
// shapes vary wildly; the normalizer absorbs them. A session id that
// still contains "{{" means n8n failed to interpolate the expression,
// in which case the most recent unmatched pending session wins.
func (h *interviewHandler) handleComplete(w http.ResponseWriter, r *http.Request) {
	h.interviews.Prune()

	payload, raw, err := readPayload(r)
	if err != nil {
		h.metrics.WebhookDeliveries.WithLabelValues("interview", "invalid").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid JSON payload"})
		return
	}

	agentData := normalize.ExtractAgentData(payload)
	if agentData == nil {
		h.metrics.WebhookDeliveries.WithLabelValues("interview", "invalid").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Invalid payload structure: missing agent data",
		})
		return
	}

	status := normalize.InterviewStatus(payload)
	if status == "" {
		status = normalize.InterviewStatus(agentData)
	}
	if status == "" {
		status = "completed"
	}
	if !normalize.IsInterviewComplete(status) {
		h.metrics.WebhookDeliveries.WithLabelValues("interview", "in_progress").Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Interview still in progress",
		})
		return
	}

	sessionID := normalize.SessionID(payload, agentData)
	template := normalize.TemplateID(payload, agentData)

	if sessionID == "" || strings.Contains(sessionID, "{{") {
		if matched, ok := h.interviews.MatchPending(template); ok {
			h.logger.Info("matched pending interview session", "session_id", matched, "template", template)
			sessionID = matched
		} else {
			sessionID = ""
		}
	}

	h.audit.Record("interview", sessionID, raw)

	if sessionID == "" {
		h.metrics.WebhookDeliveries.WithLabelValues("interview", "unresolved").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Missing session_id"})
		return
	}

	h.interviews.Complete(sessionID, agentData, template)
	h.logger.Info("interview completed", "session_id", sessionID, "template", template)
	h.metrics.WebhookDeliveries.WithLabelValues("interview", "stored").Inc()

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Webhook received successfully",
		"sessionId": sessionID,
	})
}

// handlePoll answers GET /api/webhook/n8n-template?session=. The entry
// is not consumed; pollers may read it more than once inside the TTL.
func (h *interviewHandler) handlePoll(w http.ResponseWriter, r *http.Request) {
	h.interviews.Prune()

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Missing session parameter"})
		return
	}

	entry, ok := h.interviews.Get(sessionID)
	if !ok {
		h.metrics.PollRequests.WithLabelValues("interview", "miss").Inc()
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "Session not found"})
		return
	}

	h.metrics.PollRequests.WithLabelValues("interview", "hit").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": sessionID,
		"agentData": entry.AgentData,
		"template":  nullableString(entry.Template),
	})
}
