package httpserver

import (
	"context"
	"log/slog"
	"time"

	"agent-relay/internal/metrics"
	"agent-relay/internal/repo"

	"github.com/google/uuid"
)

const auditTimeout = 5 * time.Second

// Auditor records inbound webhook deliveries to the optional audit
// repository. Recording is best-effort and asynchronous; failures are
// logged and never affect the request.
type Auditor struct {
	repository repo.Repository
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewAuditor builds an auditor. repository may be nil, which disables
// recording entirely.
func NewAuditor(repository repo.Repository, logger *slog.Logger, m *metrics.Metrics) *Auditor {
	return &Auditor{
		repository: repository,
		logger:     logger.With("component", "audit"),
		metrics:    m,
	}
}

// Record persists one delivery in the background.
func (a *Auditor) Record(source, correlationKey string, payload []byte) {
	if a == nil || a.repository == nil {
		return
	}
	event := repo.WebhookEvent{
		ID:             uuid.NewString(),
		Source:         source,
		CorrelationKey: correlationKey,
		Payload:        payload,
		ReceivedAt:     time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := a.repository.InsertWebhookEvent(ctx, event); err != nil {
			a.logger.Warn("failed recording webhook event", "error", err, "source", source)
			if a.metrics != nil {
				a.metrics.Errors.WithLabelValues("audit").Inc()
			}
		}
	}()
}
