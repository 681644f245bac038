// Package upstream holds typed HTTP clients for the external
// collaborators: the WhatsApp session microservice and the dashboard
// backend API. Both return loosely-specified JSON that callers run
// through the normalize package.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agent-relay/internal/metrics"
	"agent-relay/internal/normalize"
)

// ErrNotFound marks an upstream 404/204: the resource does not exist
// yet, which status-polling callers treat as a normal transient state.
var ErrNotFound = errors.New("upstream resource not found")

// Error is a non-2xx upstream response with its payload preserved.
type Error struct {
	Service    string
	Endpoint   string
	StatusCode int
	Detail     string
	Raw        map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s (status=%d)", e.Service, e.Endpoint, e.Detail, e.StatusCode)
}

type client struct {
	service string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func newClient(service, baseURL string, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", service+"_client"),
		metrics: m,
	}
}

// doJSON issues a request with an optional JSON body and decodes the
// response tolerantly: one-element arrays are unwrapped, unparsable
// bodies become an empty map rather than an error. 404 and 204 map to
// ErrNotFound; other non-2xx statuses map to *Error.
func (c client) doJSON(ctx context.Context, method, endpoint string, query map[string]string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	reqURL := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if len(query) > 0 {
		q := req.URL.Query()
		for key, val := range query {
			q.Set(key, val)
		}
		req.URL.RawQuery = q.Encode()
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamRequests.WithLabelValues(c.service, endpoint, "error").Inc()
		}
		return nil, fmt.Errorf("%s request: %w", c.service, err)
	}
	defer res.Body.Close()

	statusLabel := strconv.Itoa(res.StatusCode)
	if c.metrics != nil {
		c.metrics.UpstreamRequests.WithLabelValues(c.service, endpoint, statusLabel).Inc()
		c.metrics.UpstreamLatency.WithLabelValues(c.service, endpoint, statusLabel).Observe(time.Since(start).Seconds())
	}

	if res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusNoContent {
		return nil, fmt.Errorf("%s %s: %w", c.service, endpoint, ErrNotFound)
	}

	payload := decodeBody(res.Body)

	if res.StatusCode >= 400 {
		detail := normalize.FirstString(payload, "detail", "message", "error")
		if detail == "" {
			detail = fmt.Sprintf("request failed with status %d", res.StatusCode)
		}
		return nil, &Error{
			Service:    c.service,
			Endpoint:   endpoint,
			StatusCode: res.StatusCode,
			Detail:     detail,
			Raw:        payload,
		}
	}

	return payload, nil
}

func decodeBody(body io.Reader) map[string]any {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return map[string]any{}
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return map[string]any{}
	}
	if payload := normalize.Unwrap(decoded); payload != nil {
		return payload
	}
	return map[string]any{}
}
