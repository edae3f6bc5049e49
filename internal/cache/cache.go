// Package cache mirrors notifications into a local SQLite database so a
// fresh process can render the last-known feed before the first REST
// page arrives. The in-memory store stays authoritative; the cache only
// follows it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/caseflow/notify/internal/model"
)

// Cache is a SQLite-backed notification mirror.
type Cache struct {
	db *sqlx.DB
}

// New opens (or creates) the cache database at dbPath, enables WAL
// mode, and runs any pending schema migrations.
func New(dbPath string) (*Cache, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	c := &Cache{db: db}
	if err := c.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return c, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (c *Cache) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := c.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = c.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := c.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}
		if _, err := c.db.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
	}

	return nil
}

// notificationRow is the database shape of a notification.
type notificationRow struct {
	ID        string     `db:"id"`
	Category  string     `db:"category"`
	Title     string     `db:"title"`
	Message   string     `db:"message"`
	DueAt     *time.Time `db:"due_at"`
	Metadata  string     `db:"metadata"`
	Read      bool       `db:"read"`
	ReadAt    *time.Time `db:"read_at"`
	Completed bool       `db:"completed"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

// toModel converts a row back into a notification.
func (r notificationRow) toModel() (model.Notification, error) {
	n := model.Notification{
		ID:        r.ID,
		Category:  model.Category(r.Category),
		Title:     r.Title,
		Message:   r.Message,
		DueAt:     r.DueAt,
		Read:      r.Read,
		ReadAt:    r.ReadAt,
		Completed: r.Completed,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Metadata != "" && r.Metadata != "{}" {
		if err := json.Unmarshal([]byte(r.Metadata), &n.Metadata); err != nil {
			return n, fmt.Errorf("decoding metadata for %s: %w", r.ID, err)
		}
	}
	return n, nil
}

// Upsert inserts or replaces notifications by id.
func (c *Cache) Upsert(ctx context.Context, notifications ...model.Notification) error {
	for _, n := range notifications {
		metadata := "{}"
		if n.Metadata != nil {
			data, err := json.Marshal(n.Metadata)
			if err != nil {
				return fmt.Errorf("encoding metadata for %s: %w", n.ID, err)
			}
			metadata = string(data)
		}

		_, err := c.db.ExecContext(ctx, `
			INSERT INTO notifications (
				id, category, title, message, due_at, metadata,
				read, read_at, completed, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				category = excluded.category,
				title = excluded.title,
				message = excluded.message,
				due_at = excluded.due_at,
				metadata = excluded.metadata,
				read = excluded.read,
				read_at = excluded.read_at,
				completed = excluded.completed,
				updated_at = excluded.updated_at`,
			n.ID, string(n.Category), n.Title, n.Message, n.DueAt, metadata,
			n.Read, n.ReadAt, n.Completed, n.CreatedAt, n.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upserting notification %s: %w", n.ID, err)
		}
	}
	return nil
}

// Recent returns up to limit cached notifications, newest first.
func (c *Cache) Recent(ctx context.Context, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []notificationRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT id, category, title, message, due_at, metadata,
			read, read_at, completed, created_at, updated_at
		FROM notifications
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing cached notifications: %w", err)
	}

	notifications := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toModel()
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// MarkRead flips cached records to read without touching read_at rows
// that already have one.
func (c *Cache) MarkRead(ctx context.Context, ids ...string) error {
	now := time.Now().UTC()
	for _, id := range ids {
		_, err := c.db.ExecContext(ctx, `
			UPDATE notifications
			SET read = 1, read_at = COALESCE(read_at, ?), updated_at = ?
			WHERE id = ?`, now, now, id)
		if err != nil {
			return fmt.Errorf("marking cached notification %s read: %w", id, err)
		}
	}
	return nil
}

// Delete evicts notifications from the cache.
func (c *Cache) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if _, err := c.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting cached notification %s: %w", id, err)
		}
	}
	return nil
}

// UnreadCount returns the number of cached unread notifications.
func (c *Cache) UnreadCount(ctx context.Context) (int, error) {
	var count int
	err := c.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM notifications WHERE read = 0")
	if err != nil {
		return 0, fmt.Errorf("counting cached unread: %w", err)
	}
	return count, nil
}
