package upstream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"agent-relay/internal/metrics"
	"agent-relay/internal/normalize"
)

// BackendClient talks to the dashboard backend API (subscriptions and
// API keys). Everything else on the backend surface goes through the
// generic Forward passthrough.
type BackendClient struct {
	client
}

// BackendConfig holds backend client configuration.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewBackendClient creates a backend API client.
func NewBackendClient(cfg BackendConfig, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	return &BackendClient{
		client: newClient("backend", cfg.BaseURL, cfg.Timeout, logger, m),
	}
}

// Enabled reports whether a backend base URL was configured.
func (c *BackendClient) Enabled() bool {
	return c.baseURL != ""
}

// Credentials is the normalized result of a subscription lookup.
type Credentials struct {
	APIKey   string
	PlanCode string
	Raw      map[string]any
}

// Subscription fetches the caller's subscription and extracts the API
// key and plan code from whichever shape the backend used.
func (c *BackendClient) Subscription(ctx context.Context, token string) (*Credentials, error) {
	payload, err := c.doAuthorized(ctx, http.MethodGet, "/subscription", token)
	if err != nil {
		return nil, err
	}
	return credentialsFrom(payload), nil
}

// GenerateAPIKey asks the backend to mint an API key when the
// subscription lookup came back without one.
func (c *BackendClient) GenerateAPIKey(ctx context.Context, token string) (*Credentials, error) {
	payload, err := c.doAuthorized(ctx, http.MethodPost, "/api-keys/generate", token)
	if err != nil {
		return nil, err
	}
	return credentialsFrom(payload), nil
}

func (c *BackendClient) doAuthorized(ctx context.Context, method, endpoint, token string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamRequests.WithLabelValues(c.service, endpoint, "error").Inc()
		}
		return nil, err
	}
	defer res.Body.Close()

	if c.metrics != nil {
		c.metrics.UpstreamRequests.WithLabelValues(c.service, endpoint, strconv.Itoa(res.StatusCode)).Inc()
	}
	if res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusNoContent {
		return nil, ErrNotFound
	}

	payload := decodeBody(res.Body)
	if res.StatusCode >= 400 {
		detail := normalize.FirstString(payload, "detail", "message", "error")
		return nil, &Error{Service: c.service, Endpoint: endpoint, StatusCode: res.StatusCode, Detail: detail, Raw: payload}
	}
	return payload, nil
}

func credentialsFrom(payload map[string]any) *Credentials {
	creds := &Credentials{
		APIKey:   normalize.APIKey(payload),
		PlanCode: normalize.PlanCode(payload),
		Raw:      payload,
	}
	if inner := normalize.UnwrapData(payload); inner != nil {
		if creds.APIKey == "" {
			creds.APIKey = normalize.APIKey(inner)
		}
		if creds.PlanCode == "" {
			creds.PlanCode = normalize.PlanCode(inner)
		}
	}
	return creds
}

// Forward relays an arbitrary request to the backend, preserving
// method, path, query, headers and body. Used by the proxy surface;
// the caller owns the response and must close its body.
func (c *BackendClient) Forward(ctx context.Context, method, path, rawQuery string, header http.Header, body io.Reader) (*http.Response, error) {
	reqURL := c.baseURL + path
	if rawQuery != "" {
		reqURL += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	for key, vals := range header {
		switch key {
		case "Host", "Connection", "Content-Length":
			continue
		}
		for _, val := range vals {
			req.Header.Add(key, val)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamRequests.WithLabelValues(c.service, "proxy", "error").Inc()
		}
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.UpstreamRequests.WithLabelValues(c.service, "proxy", strconv.Itoa(res.StatusCode)).Inc()
	}
	return res, nil
}
