// Package store holds the process-local reconciliation caches: payment
// order records, WhatsApp session records and interview sessions. The
// stores are best-effort caches for polling UX, not sources of truth;
// the external backend stays authoritative. An optional Redis mirror
// lets restarts and sibling instances converge.
package store

import (
	"context"
	"log/slog"
	"time"
)

// Mirror is the write-through cache the stores replicate records into.
// Implemented by cache.Redis; nil disables mirroring.
type Mirror interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, key string) error
}

const mirrorTimeout = 2 * time.Second

// mirrorSet replicates a record best-effort. Mirror failures are logged
// and never surfaced to the caller.
func mirrorSet(mirror Mirror, logger *slog.Logger, key string, value any, ttl time.Duration) {
	if mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := mirror.SetJSON(ctx, key, value, ttl); err != nil {
		logger.Warn("mirror write failed", "key", key, "error", err)
	}
}

func mirrorDelete(mirror Mirror, logger *slog.Logger, key string) {
	if mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := mirror.Delete(ctx, key); err != nil {
		logger.Warn("mirror delete failed", "key", key, "error", err)
	}
}

func mirrorGet(mirror Mirror, logger *slog.Logger, key string, dest any) bool {
	if mirror == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	ok, err := mirror.GetJSON(ctx, key, dest)
	if err != nil {
		logger.Warn("mirror read failed", "key", key, "error", err)
		return false
	}
	return ok
}
