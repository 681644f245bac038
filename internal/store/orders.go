package store

import (
	"log/slog"
	"maps"
	"sync"
	"time"
)

// OrderRecord is the last known state of a payment order. Fields holds
// the merged upstream payload verbatim for forward compatibility.
type OrderRecord struct {
	OrderID           string         `json:"order_id"`
	TransactionStatus string         `json:"transaction_status"`
	OrderSuffix       string         `json:"order_suffix"`
	Source            string         `json:"source"`
	ReceivedAt        time.Time      `json:"received_at"`
	Fields            map[string]any `json:"fields"`
}

// LatestOrder points at the most recently stored order update.
type LatestOrder struct {
	OrderID           string         `json:"order_id"`
	TransactionStatus string         `json:"transaction_status"`
	Payload           map[string]any `json:"payload"`
	StoredAt          time.Time      `json:"stored_at"`
}

// OrderStore keeps one record per order id plus a suffix index that
// correlates client-generated tokens with provider-assigned order ids.
// Updates merge field-by-field (patch wins); records are never pruned,
// a process restart is the cleanup (the backend is the durable truth).
type OrderStore struct {
	mu        sync.Mutex
	records   map[string]OrderRecord
	suffixes  map[string]string
	finalized map[string]bool
	latest    *LatestOrder

	mirror Mirror
	logger *slog.Logger
	now    func() time.Time
}

// NewOrderStore constructs an order store. mirror may be nil.
func NewOrderStore(mirror Mirror, logger *slog.Logger) *OrderStore {
	return &OrderStore{
		records:   make(map[string]OrderRecord),
		suffixes:  make(map[string]string),
		finalized: make(map[string]bool),
		mirror:    mirror,
		logger:    logger.With("component", "order_store"),
		now:       time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *OrderStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Upsert merges patch over any existing record for orderID, consulting
// the mirror first so a fresh process merges into the replicated state
// instead of clobbering it. The transaction_status in the patch wins
// when present; otherwise the previous value is kept. Returns the
// merged record.
func (s *OrderStore) Upsert(orderID string, patch map[string]any, source, suffix string) OrderRecord {
	// Warm the local map from the mirror before taking the write path;
	// Get is a no-op when the record is already local.
	s.Get(orderID)

	s.mu.Lock()
	existing, ok := s.records[orderID]
	if !ok {
		existing = OrderRecord{OrderID: orderID, Fields: map[string]any{}}
	}

	fields := make(map[string]any, len(existing.Fields)+len(patch))
	maps.Copy(fields, existing.Fields)
	maps.Copy(fields, patch)

	record := OrderRecord{
		OrderID:           orderID,
		TransactionStatus: existing.TransactionStatus,
		OrderSuffix:       existing.OrderSuffix,
		Source:            existing.Source,
		ReceivedAt:        s.now(),
		Fields:            fields,
	}
	if status, ok := stringField(patch, "transaction_status"); ok {
		record.TransactionStatus = status
	}
	// An empty source keeps whatever the record already carries;
	// handlers resolve their per-route defaults before calling.
	if source != "" {
		record.Source = source
	}
	if suffix != "" {
		record.OrderSuffix = suffix
		s.suffixes[suffix] = orderID
	}

	s.records[orderID] = record
	s.latest = &LatestOrder{
		OrderID:           orderID,
		TransactionStatus: record.TransactionStatus,
		Payload:           fields,
		StoredAt:          record.ReceivedAt,
	}
	s.mu.Unlock()

	mirrorSet(s.mirror, s.logger, "payment:order:"+orderID, record, 24*time.Hour)
	return record
}

// Get returns the record for orderID, consulting the mirror on a local
// miss so a fresh process can still answer polls.
func (s *OrderStore) Get(orderID string) (OrderRecord, bool) {
	s.mu.Lock()
	record, ok := s.records[orderID]
	s.mu.Unlock()
	if ok {
		return record, true
	}

	var mirrored OrderRecord
	if mirrorGet(s.mirror, s.logger, "payment:order:"+orderID, &mirrored) {
		s.mu.Lock()
		s.records[orderID] = mirrored
		s.mu.Unlock()
		return mirrored, true
	}
	return OrderRecord{}, false
}

// BindSuffix records a suffix mapping. An empty orderID marks the
// suffix as seen-but-unresolved so later updates can bind it.
func (s *OrderStore) BindSuffix(suffix, orderID string) {
	if suffix == "" {
		return
	}
	s.mu.Lock()
	s.suffixes[suffix] = orderID
	s.mu.Unlock()
}

// ResolveSuffix maps a client-generated suffix to the order id it has
// been bound to, if any.
func (s *OrderStore) ResolveSuffix(suffix string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orderID, ok := s.suffixes[suffix]
	if !ok || orderID == "" {
		return "", false
	}
	return orderID, true
}

// Latest returns the most recent update across all orders.
func (s *OrderStore) Latest() *LatestOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// MarkFinalized returns true exactly once per order id; repeat calls
// report false so terminal side effects fire a single time.
func (s *OrderStore) MarkFinalized(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized[orderID] {
		return false
	}
	s.finalized[orderID] = true
	return true
}

func stringField(data map[string]any, key string) (string, bool) {
	val, ok := data[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}
