package store

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultInterviewTTL bounds how long pending and completed interview
// entries are kept.
const DefaultInterviewTTL = 10 * time.Minute

// PendingSession is a registered-but-not-yet-completed interview. It
// exists so completions that lost their session id (the workflow tool
// sometimes fails to interpolate it) can still be correlated.
type PendingSession struct {
	SessionID    string    `json:"session_id"`
	TemplateID   string    `json:"template_id"`
	Matched      bool      `json:"matched"`
	RegisteredAt time.Time `json:"registered_at"`
}

// CompletedInterview is the agent configuration posted back by the
// workflow once the interview finishes.
type CompletedInterview struct {
	SessionID  string         `json:"session_id"`
	AgentData  map[string]any `json:"agent_data"`
	Template   string         `json:"template"`
	ReceivedAt time.Time      `json:"received_at"`
}

// InterviewStore bridges the frontend-generated interview session id
// with the asynchronous completion callback from the workflow engine.
type InterviewStore struct {
	mu        sync.Mutex
	pending   map[string]*PendingSession
	order     []string
	completed map[string]CompletedInterview
	ttl       time.Duration

	mirror Mirror
	logger *slog.Logger
	now    func() time.Time
}

// NewInterviewStore constructs an interview store. mirror may be nil;
// ttl <= 0 selects DefaultInterviewTTL.
func NewInterviewStore(ttl time.Duration, mirror Mirror, logger *slog.Logger) *InterviewStore {
	if ttl <= 0 {
		ttl = DefaultInterviewTTL
	}
	return &InterviewStore{
		pending:   make(map[string]*PendingSession),
		completed: make(map[string]CompletedInterview),
		ttl:       ttl,
		mirror:    mirror,
		logger:    logger.With("component", "interview_store"),
		now:       time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *InterviewStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Register records a pending session before the interview starts so a
// later completion without a usable session id has something to match.
// Re-registering resets the matched flag.
func (s *InterviewStore) Register(sessionID, templateID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[sessionID]; !ok {
		s.order = append(s.order, sessionID)
	}
	s.pending[sessionID] = &PendingSession{
		SessionID:    sessionID,
		TemplateID:   templateID,
		RegisteredAt: s.now(),
	}
}

// MatchPending finds the most recently registered unmatched pending
// session for templateID (any template when templateID is empty),
// marks it matched and returns its session id.
func (s *InterviewStore) MatchPending(templateID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		entry, ok := s.pending[s.order[i]]
		if !ok || entry.Matched {
			continue
		}
		if templateID != "" && entry.TemplateID != templateID {
			continue
		}
		entry.Matched = true
		return entry.SessionID, true
	}
	return "", false
}

// Complete stores a finished interview keyed by session id.
func (s *InterviewStore) Complete(sessionID string, agentData map[string]any, template string) CompletedInterview {
	record := CompletedInterview{
		SessionID: sessionID,
		AgentData: agentData,
		Template:  template,
	}
	s.mu.Lock()
	record.ReceivedAt = s.now()
	s.completed[sessionID] = record
	s.mu.Unlock()

	mirrorSet(s.mirror, s.logger, "interview:completed:"+sessionID, record, s.ttl)
	return record
}

// Get returns the completed interview for sessionID. The entry is
// deliberately not deleted on read: pollers and the final fetch may
// both read it.
func (s *InterviewStore) Get(sessionID string) (CompletedInterview, bool) {
	s.mu.Lock()
	record, ok := s.completed[sessionID]
	s.mu.Unlock()
	if ok {
		return record, true
	}

	var mirrored CompletedInterview
	if mirrorGet(s.mirror, s.logger, "interview:completed:"+sessionID, &mirrored) {
		s.mu.Lock()
		s.completed[sessionID] = mirrored
		s.mu.Unlock()
		return mirrored, true
	}
	return CompletedInterview{}, false
}

// Pending returns the pending entry for sessionID, for inspection.
func (s *InterviewStore) Pending(sessionID string) (PendingSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[sessionID]
	if !ok {
		return PendingSession{}, false
	}
	return *entry, true
}

// Prune drops pending and completed entries older than the store TTL.
func (s *InterviewStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	removed := 0

	for sessionID, record := range s.completed {
		if record.ReceivedAt.Before(cutoff) {
			delete(s.completed, sessionID)
			removed++
		}
	}

	kept := s.order[:0]
	for _, sessionID := range s.order {
		entry, ok := s.pending[sessionID]
		if !ok {
			continue
		}
		if entry.RegisteredAt.Before(cutoff) {
			delete(s.pending, sessionID)
			removed++
			continue
		}
		kept = append(kept, sessionID)
	}
	s.order = kept
	return removed
}
