package repo

import (
	"context"
	"io/fs"
)

// Repository defines the interface for the webhook audit log.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Webhook events
	InsertWebhookEvent(ctx context.Context, event WebhookEvent) error
	ListRecentWebhookEvents(ctx context.Context, source string, limit int) ([]WebhookEvent, error)
}
