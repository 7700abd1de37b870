// Package store persists validated implementations in SQLite so an unchanged
// target can be served without another model conversation.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"natural/internal/implementer"
	"natural/internal/logging"
)

// Entry is one cached implementation.
type Entry struct {
	Key       string
	Name      string
	Signature string
	Model     string
	Source    string
	Attempts  int
	Hits      int
	CreatedAt time.Time
	LastUsed  sql.NullTime
}

// Store is an implementation cache backed by a SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

var _ implementer.Cache = (*Store)(nil)

// Open opens or creates the cache database at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
		}
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Implementation cache ready at %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup implements implementer.Cache and records the hit.
func (s *Store) Lookup(ctx context.Context, key string) (string, bool, error) {
	e, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE implementations SET hits = COALESCE(hits, 0) + 1, last_used = ? WHERE cache_key = ?`,
		time.Now().UTC(), key); err != nil {
		logging.StoreWarn("Failed to record cache hit for %s: %v", e.Name, err)
	}
	return e.Source, true, nil
}

// Save implements implementer.Cache.
func (s *Store) Save(ctx context.Context, r implementer.Record) error {
	return s.Put(ctx, Entry{
		Key:       r.Key,
		Name:      r.Name,
		Signature: r.Signature,
		Model:     r.Model,
		Source:    r.Source,
		Attempts:  r.Attempts,
	})
}

// Get returns the entry stored under key.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cache_key, name, signature, model, source, attempts, COALESCE(hits, 0), created_at, last_used
		FROM implementations WHERE cache_key = ?`, key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return e, true, nil
}

// Put inserts or replaces an entry.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if e.Key == "" {
		return errors.New("cache entry has no key")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO implementations (cache_key, name, signature, model, source, attempts)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			name = excluded.name,
			signature = excluded.signature,
			model = excluded.model,
			source = excluded.source,
			attempts = excluded.attempts,
			created_at = CURRENT_TIMESTAMP`,
		e.Key, e.Name, e.Signature, e.Model, e.Source, e.Attempts)
	if err != nil {
		return fmt.Errorf("failed to store implementation of %s: %w", e.Name, err)
	}
	logging.StoreDebug("Cached implementation of %s", e.Name)
	return nil
}

// List returns every entry, most recent first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cache_key, name, signature, model, source, attempts, COALESCE(hits, 0), created_at, last_used
		FROM implementations ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read cache entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear removes every entry and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM implementations`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	n, _ := res.RowsAffected()
	logging.Store("Cleared %d cached implementations", n)
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var e Entry
	err := sc.Scan(&e.Key, &e.Name, &e.Signature, &e.Model, &e.Source, &e.Attempts, &e.Hits, &e.CreatedAt, &e.LastUsed)
	return e, err
}
