package repo

import (
	"encoding/json"
	"time"
)

// WebhookEvent is one inbound webhook delivery, kept for debugging the
// best-effort in-memory caches.
type WebhookEvent struct {
	ID             string
	Source         string
	CorrelationKey string
	Payload        json.RawMessage
	ReceivedAt     time.Time
}
