// Package store is the durable store: a single SQLite file holding
// user settings, the emoji job ledger, usage stats, and the tracking
// tables, reached through database/sql via the pure-Go sqlite driver.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the single sqlite connection shared by every table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the database file at path and runs
// migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying connection. Calling it on a nil Store is a
// no-op.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for components that need raw access.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS user_settings (
			user_id INTEGER PRIMARY KEY,
			grid TEXT NOT NULL,
			padding INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS emoji_jobs (
			user_id INTEGER NOT NULL,
			image_hash TEXT NOT NULL,
			grid TEXT NOT NULL,
			padding INTEGER NOT NULL,
			short_name TEXT NOT NULL,
			link TEXT NOT NULL,
			custom_emoji_ids TEXT NOT NULL,
			fragment_preview_id TEXT,
			created_at TEXT NOT NULL,
			PRIMARY KEY (user_id, image_hash, grid, padding)
		);`,
		`CREATE TABLE IF NOT EXISTS usage_stats (
			user_id INTEGER PRIMARY KEY,
			username TEXT,
			display_name TEXT,
			total_count INTEGER NOT NULL DEFAULT 0,
			message_count INTEGER NOT NULL DEFAULT 0,
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tracking_links (
			link_id INTEGER PRIMARY KEY AUTOINCREMENT,
			tag TEXT NOT NULL,
			slug TEXT NOT NULL,
			created_at TEXT NOT NULL,
			deleted_at TEXT
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tracking_links_active_slug
			ON tracking_links(slug) WHERE deleted_at IS NULL;`,
		`CREATE TABLE IF NOT EXISTS tracking_events (
			event_id INTEGER PRIMARY KEY AUTOINCREMENT,
			link_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			first_start INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_events_link ON tracking_events(link_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_events_link_user ON tracking_events(link_id, user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_events_created ON tracking_events(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %s: %w", stmt, err)
		}
	}
	return nil
}

// NowUTC returns the current instant formatted the way every table stores
// timestamps: an ISO-8601 UTC string.
func NowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
