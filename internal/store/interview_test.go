package store

import (
	"testing"
	"time"
)

func TestInterviewCompleteThenGet(t *testing.T) {
	s := NewInterviewStore(0, nil, testLogger())
	s.Complete("s1", map[string]any{"name": "Bot"}, "T1")

	record, ok := s.Get("s1")
	if !ok {
		t.Fatal("expected completed record")
	}
	if record.AgentData["name"] != "Bot" || record.Template != "T1" {
		t.Fatalf("unexpected record: %+v", record)
	}

	// Reads must not consume the entry.
	if _, ok := s.Get("s1"); !ok {
		t.Fatal("second read must still find the record")
	}
}

func TestInterviewFallbackMatching(t *testing.T) {
	s := NewInterviewStore(0, nil, testLogger())
	s.Register("s1", "T1")
	s.Register("s2", "T2")
	s.Register("s3", "T1")

	// Most recent unmatched pending for the template wins.
	sessionID, ok := s.MatchPending("T1")
	if !ok || sessionID != "s3" {
		t.Fatalf("expected s3, got %q ok=%v", sessionID, ok)
	}

	pending, _ := s.Pending("s3")
	if !pending.Matched {
		t.Fatal("matched entry must be flagged")
	}

	// A second completion for the same template must not re-match s3.
	sessionID, ok = s.MatchPending("T1")
	if !ok || sessionID != "s1" {
		t.Fatalf("expected s1 on second match, got %q ok=%v", sessionID, ok)
	}

	if _, ok := s.MatchPending("T1"); ok {
		t.Fatal("no unmatched entries should remain for T1")
	}
}

func TestInterviewFallbackMatchingWithoutTemplate(t *testing.T) {
	s := NewInterviewStore(0, nil, testLogger())
	s.Register("s1", "T1")

	sessionID, ok := s.MatchPending("")
	if !ok || sessionID != "s1" {
		t.Fatalf("template-less match failed: %q ok=%v", sessionID, ok)
	}
}

func TestInterviewPrune(t *testing.T) {
	s := NewInterviewStore(0, nil, testLogger())
	current := time.Now()
	s.SetClock(func() time.Time { return current })

	s.Register("s1", "T1")
	s.Complete("s2", map[string]any{"name": "Bot"}, "")

	current = current.Add(11 * time.Minute)
	if removed := s.Prune(); removed != 2 {
		t.Fatalf("expected 2 pruned entries, got %d", removed)
	}
	if _, ok := s.Get("s2"); ok {
		t.Fatal("completed entry should be pruned")
	}
	if _, ok := s.Pending("s1"); ok {
		t.Fatal("pending entry should be pruned")
	}
	if _, ok := s.MatchPending("T1"); ok {
		t.Fatal("pruned pending entry must not match")
	}
}
