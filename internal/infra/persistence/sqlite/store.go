// Package sqlite stores saved project documents in a single SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"eiscore/pkg/domain"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.DocumentStore = (*Store)(nil)

// Store keeps one row per document location.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewStore opens (creating if needed) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "eiscore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		location TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying sql.DB for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Write upserts the document; the single statement is atomic.
func (s *Store) Write(ctx context.Context, location string, data []byte) error {
	if location == "" {
		return fmt.Errorf("write document: empty location")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO documents(location, payload, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(location) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		location, data, s.now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("upsert %s: %w", location, err)
	}
	return nil
}

// Read returns the document payload.
func (s *Store) Read(ctx context.Context, location string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM documents WHERE location = ?`, location).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", location, os.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", location, err)
	}
	return payload, nil
}

// Stat reports the payload size and last write time.
func (s *Store) Stat(ctx context.Context, location string) (domain.DocumentInfo, bool, error) {
	var (
		size    int64
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT length(payload), updated_at FROM documents WHERE location = ?`, location).Scan(&size, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DocumentInfo{}, false, nil
	}
	if err != nil {
		return domain.DocumentInfo{}, false, fmt.Errorf("stat %s: %w", location, err)
	}
	return domain.DocumentInfo{Location: location, Size: size, ModTime: time.Unix(0, updated).UTC()}, true, nil
}
