// Package repo persists inbound webhook deliveries for audit. Two
// implementations exist: Postgres for hosted deployments and SQLite
// for single-box setups. Both are optional; the reconciliation caches
// never depend on them.
package repo

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores webhook events in Postgres.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	schema string
}

// NewPostgres opens a connection pool with the desired search_path.
func NewPostgres(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		logger: logger.With("component", "repo_postgres"),
		schema: schema,
	}

	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes the embedded SQL files in lexicographical
// order, each inside its own transaction.
func (r *PostgresRepository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	entries, err := fs.ReadDir(filesystem, "postgres")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		sqlBytes, err := fs.ReadFile(filesystem, "postgres/"+entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if len(sqlBytes) == 0 {
			continue
		}

		err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, string(sqlBytes))
			return err
		})
		if err != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
		r.logger.Debug("applied migration", "file", entry.Name())
	}

	return nil
}

// InsertWebhookEvent records one inbound delivery.
func (r *PostgresRepository) InsertWebhookEvent(ctx context.Context, event WebhookEvent) error {
	const q = `
INSERT INTO webhook_events (id, source, correlation_key, payload, received_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING;
`
	var payload any
	if len(event.Payload) > 0 {
		payload = string(event.Payload)
	}
	_, err := r.pool.Exec(ctx, q, event.ID, event.Source, event.CorrelationKey, payload, event.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// ListRecentWebhookEvents returns the newest events, optionally
// filtered by source.
func (r *PostgresRepository) ListRecentWebhookEvents(ctx context.Context, source string, limit int) ([]WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, source, correlation_key, payload, received_at
FROM webhook_events
WHERE ($1 = '' OR source = $1)
ORDER BY received_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, q, source, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	defer rows.Close()

	var events []WebhookEvent
	for rows.Next() {
		var ev WebhookEvent
		var payload *string
		if err := rows.Scan(&ev.ID, &ev.Source, &ev.CorrelationKey, &payload, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		if payload != nil {
			ev.Payload = []byte(*payload)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
