package store

import (
	"log/slog"
	"sync"
	"time"

	"agent-relay/internal/normalize"
)

// DefaultWhatsAppTTL is how long a session record stays useful; QR
// codes rotate well inside this window.
const DefaultWhatsAppTTL = 15 * time.Minute

// SessionRecord is the last known WhatsApp-link state for one agent.
type SessionRecord struct {
	AgentID            string         `json:"agent_id"`
	Status             string         `json:"status"`
	IsActive           bool           `json:"is_active"`
	QRImage            string         `json:"qr_image"`
	QRURL              string         `json:"qr_url"`
	QRBase64           string         `json:"qr_base64"`
	QRContentType      string         `json:"qr_content_type"`
	QRExpiresAt        *time.Time     `json:"qr_expires_at"`
	QRExpiresInSeconds float64        `json:"qr_expires_in_seconds"`
	QRUpdatedAt        time.Time      `json:"qr_updated_at"`
	ReceivedAt         time.Time      `json:"received_at"`
	TraceID            string         `json:"trace_id"`
	Raw                map[string]any `json:"raw"`
}

// NewSessionRecord normalizes an upstream payload into a SessionRecord.
// The verbatim payload is kept in Raw for debugging.
func NewSessionRecord(agentID string, payload map[string]any, traceID string, now time.Time) SessionRecord {
	env := normalize.ExtractQREnvelope(payload)

	qrImage := normalize.FirstString(payload, "qrImage", "qr_image")
	if qrImage == "" {
		qrImage = env.QRImage()
	}

	status := normalize.FirstString(payload, "status", "session_status", "state", "sessionState")
	if status == "" {
		status = "pending"
	}

	qrUpdatedAt := now
	if ts := normalize.CoerceTimestamp(payload["qrUpdatedAt"]); ts != nil {
		qrUpdatedAt = *ts
	} else if ts := normalize.CoerceTimestamp(payload["qr_updated_at"]); ts != nil {
		qrUpdatedAt = *ts
	}

	if traceID == "" {
		traceID = normalize.FirstString(payload, "traceId", "trace_id")
	}

	return SessionRecord{
		AgentID:            agentID,
		Status:             status,
		IsActive:           normalize.FirstBool(payload, "isActive", "is_active") || status == "active",
		QRImage:            qrImage,
		QRURL:              env.URL,
		QRBase64:           env.Base64,
		QRContentType:      env.ContentType,
		QRExpiresAt:        env.ExpiresAt,
		QRExpiresInSeconds: env.ExpiresInSeconds,
		QRUpdatedAt:        qrUpdatedAt,
		ReceivedAt:         now,
		TraceID:            traceID,
		Raw:                payload,
	}
}

// WhatsAppStore keeps one session record per agent. Unlike the order
// store, an upsert fully replaces the previous record: each detail
// fetch returns the complete upstream state, so merging would only
// resurrect stale QR data.
type WhatsAppStore struct {
	mu      sync.Mutex
	records map[string]SessionRecord
	ttl     time.Duration

	mirror Mirror
	logger *slog.Logger
	now    func() time.Time
}

// NewWhatsAppStore constructs a WhatsApp session store. mirror may be
// nil; ttl <= 0 selects DefaultWhatsAppTTL.
func NewWhatsAppStore(ttl time.Duration, mirror Mirror, logger *slog.Logger) *WhatsAppStore {
	if ttl <= 0 {
		ttl = DefaultWhatsAppTTL
	}
	return &WhatsAppStore{
		records: make(map[string]SessionRecord),
		ttl:     ttl,
		mirror:  mirror,
		logger:  logger.With("component", "whatsapp_store"),
		now:     time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *WhatsAppStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Now returns the store's current time.
func (s *WhatsAppStore) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}

// Upsert replaces the record for its agent id.
func (s *WhatsAppStore) Upsert(record SessionRecord) SessionRecord {
	s.mu.Lock()
	s.records[record.AgentID] = record
	s.mu.Unlock()

	mirrorSet(s.mirror, s.logger, "wa:session:"+record.AgentID, record, s.ttl)
	return record
}

// Get returns the record for agentID, consulting the mirror on a miss.
func (s *WhatsAppStore) Get(agentID string) (SessionRecord, bool) {
	s.mu.Lock()
	record, ok := s.records[agentID]
	s.mu.Unlock()
	if ok {
		return record, true
	}

	var mirrored SessionRecord
	if mirrorGet(s.mirror, s.logger, "wa:session:"+agentID, &mirrored) {
		s.mu.Lock()
		s.records[agentID] = mirrored
		s.mu.Unlock()
		return mirrored, true
	}
	return SessionRecord{}, false
}

// Delete removes the record for agentID.
func (s *WhatsAppStore) Delete(agentID string) bool {
	s.mu.Lock()
	_, ok := s.records[agentID]
	delete(s.records, agentID)
	s.mu.Unlock()

	mirrorDelete(s.mirror, s.logger, "wa:session:"+agentID)
	return ok
}

// List returns all live records.
func (s *WhatsAppStore) List() []SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	return out
}

// Prune drops records older than the store TTL. Pruning is lazy:
// handlers call it before relying on freshness, there is no timer.
func (s *WhatsAppStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for agentID, record := range s.records {
		ts := record.ReceivedAt
		if ts.IsZero() {
			ts = record.QRUpdatedAt
		}
		if !ts.IsZero() && ts.Before(cutoff) {
			delete(s.records, agentID)
			removed++
		}
	}
	return removed
}
