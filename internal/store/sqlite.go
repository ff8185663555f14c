package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Store is a small keyed blob store with per-entry timestamps. The advisory
// client uses it to cache lookups between scans.
type Store interface {
	Close() error
	Get(ctx context.Context, namespace, key string, maxAge time.Duration) ([]byte, bool, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Entry is one cached value.
type Entry struct {
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens the database at path and applies migrations.
// ":memory:" gives a process-local store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes
	// writers, which SQLite would do anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, key)
	);
	CREATE INDEX IF NOT EXISTS idx_cache_entries_updated ON cache_entries(updated_at);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the value stored under (namespace, key). Entries older than
// maxAge are reported as missing; maxAge <= 0 disables the age check.
func (s *SQLiteStore) Get(ctx context.Context, namespace, key string, maxAge time.Duration) ([]byte, bool, error) {
	query := `SELECT value, updated_at FROM cache_entries WHERE namespace = ? AND key = ?`

	var (
		value   []byte
		updated int64
	)
	err := s.db.QueryRowContext(ctx, query, namespace, key).Scan(&value, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if maxAge > 0 && s.now().Sub(time.Unix(0, updated)) > maxAge {
		return nil, false, nil
	}
	return value, true, nil
}

// Put inserts or replaces the value stored under (namespace, key).
func (s *SQLiteStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	query := `
	INSERT INTO cache_entries (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, query, namespace, key, value, s.now().UnixNano()); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Purge deletes entries older than olderThan and returns how many were removed.
func (s *SQLiteStore) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	return res.RowsAffected()
}

// List returns every entry in namespace ordered by key.
func (s *SQLiteStore) List(ctx context.Context, namespace string) ([]Entry, error) {
	query := `SELECT namespace, key, value, updated_at FROM cache_entries WHERE namespace = ? ORDER BY key`
	rows, err := s.db.QueryContext(ctx, query, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		var (
			e       Entry
			updated int64
		)
		if err := rows.Scan(&e.Namespace, &e.Key, &e.Value, &updated); err != nil {
			return nil, err
		}
		e.UpdatedAt = time.Unix(0, updated).UTC()
		results = append(results, e)
	}
	return results, rows.Err()
}
