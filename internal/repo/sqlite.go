package repo

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores webhook events in a local SQLite database.
type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens the SQLite database at path.
func NewSQLite(ctx context.Context, databasePath string, logger *slog.Logger) (*SQLiteRepository, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn = fmt.Sprintf("%s%s_pragma=busy_timeout=10000&_pragma=journal_mode=WAL&_pragma=foreign_keys=ON", dsn, sep)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		logger: logger.With("component", "repo_sqlite"),
	}, nil
}

// Close releases the database connection.
func (r *SQLiteRepository) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// Ping ensures the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RunMigrations applies the embedded SQLite migration files in
// lexicographical order.
func (r *SQLiteRepository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	entries, err := fs.ReadDir(filesystem, "sqlite")
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

		sqlBytes, err := fs.ReadFile(filesystem, "sqlite/"+entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if len(sqlBytes) == 0 {
			continue
		}
		if _, err := r.db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
		r.logger.Debug("applied migration", "file", entry.Name())
	}

	return nil
}

// InsertWebhookEvent records one inbound delivery.
func (r *SQLiteRepository) InsertWebhookEvent(ctx context.Context, event WebhookEvent) error {
	const q = `
INSERT OR IGNORE INTO webhook_events (id, source, correlation_key, payload, received_at)
VALUES (?, ?, ?, ?, ?);
`
	_, err := r.db.ExecContext(ctx, q, event.ID, event.Source, event.CorrelationKey, string(event.Payload), event.ReceivedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// ListRecentWebhookEvents returns the newest events, optionally
// filtered by source.
func (r *SQLiteRepository) ListRecentWebhookEvents(ctx context.Context, source string, limit int) ([]WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, source, correlation_key, payload, received_at
FROM webhook_events
WHERE (? = '' OR source = ?)
ORDER BY received_at DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, source, source, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	defer rows.Close()

	var events []WebhookEvent
	for rows.Next() {
		var ev WebhookEvent
		var payload string
		if err := rows.Scan(&ev.ID, &ev.Source, &ev.CorrelationKey, &payload, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		ev.Payload = []byte(payload)
		events = append(events, ev)
	}
	return events, rows.Err()
}
