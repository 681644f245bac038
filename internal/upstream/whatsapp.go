package upstream

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agent-relay/internal/metrics"
)

// WhatsAppClient talks to the WhatsApp session microservice. The
// service's response shapes vary (bare object, one-element array,
// fields nested under data); callers receive the unwrapped object.
type WhatsAppClient struct {
	client
	langchainBaseURL string
}

// WhatsAppConfig holds WhatsApp client configuration.
type WhatsAppConfig struct {
	BaseURL          string
	LangchainBaseURL string
	Timeout          time.Duration
}

// NewWhatsAppClient creates a WhatsApp session service client.
func NewWhatsAppClient(cfg WhatsAppConfig, logger *slog.Logger, m *metrics.Metrics) *WhatsAppClient {
	base := cfg.BaseURL
	if base == "" {
		base = "http://localhost:8080/api/v1"
	}
	return &WhatsAppClient{
		client:           newClient("whatsapp", base, cfg.Timeout, logger, m),
		langchainBaseURL: strings.TrimRight(cfg.LangchainBaseURL, "/"),
	}
}

// CreateSessionRequest holds parameters to start a WhatsApp link.
type CreateSessionRequest struct {
	AgentID   string
	AgentName string
	APIKey    string
}

// SessionDetail fetches the current session state for an agent.
// ErrNotFound means the agent has no session yet.
func (c *WhatsAppClient) SessionDetail(ctx context.Context, agentID string) (map[string]any, error) {
	return c.doJSON(ctx, http.MethodGet, "/sessions/detail", map[string]string{"agentId": agentID}, nil)
}

// CreateSession asks the service to start a session for an agent. The
// execute URL for the agent is derived from the configured langchain
// base so the daemon knows where to deliver inbound messages.
func (c *WhatsAppClient) CreateSession(ctx context.Context, req CreateSessionRequest) (map[string]any, error) {
	name := req.AgentName
	if name == "" {
		name = req.AgentID
	}
	body := map[string]any{
		"agentId":   req.AgentID,
		"agentName": name,
		"apiKey":    req.APIKey,
	}
	if c.langchainBaseURL != "" {
		body["langchainUrl"] = c.langchainBaseURL + "/agents/" + req.AgentID + "/execute"
	}
	return c.doJSON(ctx, http.MethodPost, "/sessions/create", nil, body)
}

// Reconnect asks the service to re-establish a dropped session.
func (c *WhatsAppClient) Reconnect(ctx context.Context, agentID string) (map[string]any, error) {
	return c.doJSON(ctx, http.MethodPost, "/sessions/reconnect", nil, map[string]any{"agentId": agentID})
}

// SessionStatus fetches the live connection status for an agent,
// bypassing any state the service caches for detail lookups.
func (c *WhatsAppClient) SessionStatus(ctx context.Context, agentID string) (map[string]any, error) {
	return c.doJSON(ctx, http.MethodGet, "/sessions/status", map[string]string{"agentId": agentID}, nil)
}

// DeleteSession tears down the session for an agent.
func (c *WhatsAppClient) DeleteSession(ctx context.Context, agentID string) (map[string]any, error) {
	return c.doJSON(ctx, http.MethodDelete, "/sessions/delete", nil, map[string]any{"agentId": agentID})
}
