// Package store persists broadcast subscribers and the delivery journal in
// SQLite. Counter and template state is deliberately not stored here; it
// lives in memory for the process lifetime.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"skiff/internal/config"
)

// Delivery statuses recorded in the journal.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Delivery is one journal row describing a finished pipeline run.
type Delivery struct {
	ID         int64
	OwnerID    int64
	FileName   string
	Status     string
	Diagnostic string
	CreatedAt  time.Time
}

// Store manages persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database and verifies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "skiff.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// AddSubscriber records a chat for broadcast fan-out. Adding the same chat
// twice is a no-op.
func (s *Store) AddSubscriber(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscribers (chat_id, created_at) VALUES (?, ?)`,
		chatID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

// RemoveSubscriber drops a chat from broadcast fan-out, used when a send
// reports the chat as gone.
func (s *Store) RemoveSubscriber(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	return nil
}

// Subscribers lists every broadcast chat id.
func (s *Store) Subscribers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM subscribers ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var chats []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		chats = append(chats, id)
	}
	return chats, rows.Err()
}

// RecordDelivery journals one pipeline outcome and returns its row id.
func (s *Store) RecordDelivery(ctx context.Context, ownerID int64, fileName, status, diagnostic string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (owner_id, file_name, status, diagnostic, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		ownerID, fileName, status, nullableString(diagnostic),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert delivery: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// RecentDeliveries returns the newest journal rows, most recent first.
func (s *Store) RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, file_name, status, diagnostic, created_at
         FROM deliveries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var (
			d          Delivery
			diagnostic sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.FileName, &d.Status, &diagnostic, &createdAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Diagnostic = diagnostic.String
		if ts, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
			d.CreatedAt = ts
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
