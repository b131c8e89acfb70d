package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// busy_timeout(5000): wait up to 5s when the DB is locked instead of failing immediately
	// journal_mode(WAL): readers don't block the writer during fan-out pruning
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS subscriptions (
			endpoint TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			p256dh TEXT NOT NULL,
			auth TEXT NOT NULL,
			createdAt INTEGER NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, sub Subscription) error {
	query := `
		INSERT INTO subscriptions (endpoint, id, p256dh, auth, createdAt)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, sub.Endpoint, sub.ID, sub.Keys.P256dh, sub.Keys.Auth, sub.CreatedAt.UnixMilli())
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, endpoint string) (Subscription, error) {
	sub := Subscription{Endpoint: endpoint}
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, p256dh, auth, createdAt FROM subscriptions WHERE endpoint = ?`, endpoint,
	).Scan(&sub.ID, &sub.Keys.P256dh, &sub.Keys.Auth, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, ErrNotFound
	}
	if err != nil {
		return Subscription{}, err
	}
	sub.CreatedAt = time.UnixMilli(createdAt).UTC()
	return sub, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT endpoint, id, p256dh, auth, createdAt FROM subscriptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]Subscription, 0)
	for rows.Next() {
		var sub Subscription
		var createdAt int64
		if err := rows.Scan(&sub.Endpoint, &sub.ID, &sub.Keys.P256dh, &sub.Keys.Auth, &createdAt); err != nil {
			return nil, err
		}
		sub.CreatedAt = time.UnixMilli(createdAt).UTC()
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

func (s *SQLiteStore) Remove(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE endpoint = ?`, endpoint)
	return err
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
