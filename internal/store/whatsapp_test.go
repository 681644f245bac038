package store

import (
	"testing"
	"time"
)

func TestWhatsAppUpsertReplacesRecord(t *testing.T) {
	s := NewWhatsAppStore(0, nil, testLogger())
	now := time.Now()

	first := NewSessionRecord("agent-1", map[string]any{
		"status":    "pending",
		"qr_base64": "QUJD",
	}, "", now)
	s.Upsert(first)

	// A replace upsert must not keep the old QR around.
	second := NewSessionRecord("agent-1", map[string]any{
		"status":    "active",
		"is_active": true,
	}, "", now)
	s.Upsert(second)

	got, ok := s.Get("agent-1")
	if !ok {
		t.Fatal("expected record")
	}
	if got.QRBase64 != "" {
		t.Fatalf("replace semantics violated, stale qr survived: %q", got.QRBase64)
	}
	if !got.IsActive || got.Status != "active" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestWhatsAppPruneDropsExpiredRecords(t *testing.T) {
	s := NewWhatsAppStore(0, nil, testLogger())
	current := time.Now()
	s.SetClock(func() time.Time { return current })

	record := NewSessionRecord("agent-1", map[string]any{"status": "pending"}, "", current)
	s.Upsert(record)

	// Advance the clock past the 15 minute TTL.
	current = current.Add(16 * time.Minute)
	if removed := s.Prune(); removed != 1 {
		t.Fatalf("expected 1 pruned record, got %d", removed)
	}
	if _, ok := s.Get("agent-1"); ok {
		t.Fatal("pruned record must not be returned")
	}
}

func TestWhatsAppPruneKeepsFreshRecords(t *testing.T) {
	s := NewWhatsAppStore(0, nil, testLogger())
	current := time.Now()
	s.SetClock(func() time.Time { return current })

	s.Upsert(NewSessionRecord("agent-1", map[string]any{"status": "pending"}, "", current))
	current = current.Add(5 * time.Minute)
	if removed := s.Prune(); removed != 0 {
		t.Fatalf("fresh record pruned: %d", removed)
	}
}

func TestWhatsAppDelete(t *testing.T) {
	s := NewWhatsAppStore(0, nil, testLogger())
	s.Upsert(NewSessionRecord("agent-1", map[string]any{"status": "pending"}, "", time.Now()))
	if !s.Delete("agent-1") {
		t.Fatal("delete should report existing record")
	}
	if s.Delete("agent-1") {
		t.Fatal("second delete should report false")
	}
}

func TestNewSessionRecordNormalizesPayload(t *testing.T) {
	now := time.Now()
	record := NewSessionRecord("agent-1", map[string]any{
		"session_status": "active",
		"qr": map[string]any{
			"base64":      "QUJD",
			"contentType": "image/jpeg",
		},
		"trace_id": "trace-9",
	}, "", now)

	if record.Status != "active" || !record.IsActive {
		t.Fatalf("status normalization failed: %+v", record)
	}
	if record.QRImage != "data:image/jpeg;base64,QUJD" {
		t.Fatalf("unexpected qr image %q", record.QRImage)
	}
	if record.TraceID != "trace-9" {
		t.Fatalf("unexpected trace id %q", record.TraceID)
	}
	if record.Raw == nil {
		t.Fatal("raw payload must be kept")
	}
}

func TestNewSessionRecordDefaultsStatusPending(t *testing.T) {
	record := NewSessionRecord("agent-1", map[string]any{}, "", time.Now())
	if record.Status != "pending" || record.IsActive {
		t.Fatalf("expected pending default, got %+v", record)
	}
}
