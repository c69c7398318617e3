// Package postgres stores saved project documents in a Postgres JSONB table.
package postgres

import (
	"context"
	"database/sql"
	"eiscore/pkg/domain"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.DocumentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/eiscore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store keeps one JSONB row per document location.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewStore connects using dsn (falling back to a local default) and ensures
// the documents table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureDocumentsTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func ensureDocumentsTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS documents (
		location TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure documents table: %w", err)
	}
	return nil
}

// Write upserts the document. Documents are JSON, so they are stored as JSONB
// text; Read returns Postgres' normalized rendering of the same value.
func (s *Store) Write(ctx context.Context, location string, data []byte) error {
	if location == "" {
		return fmt.Errorf("write document: empty location")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO documents (location, payload, updated_at) VALUES ($1,$2,$3) ON CONFLICT (location) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		location, string(data), s.now().UTC())
	if err != nil {
		return fmt.Errorf("upsert %s: %w", location, err)
	}
	return nil
}

// Read returns the stored document.
func (s *Store) Read(ctx context.Context, location string) ([]byte, error) {
	payload, _, err := s.fetch(ctx, location)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", location, os.ErrNotExist)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Stat reports the document size and last write time.
func (s *Store) Stat(ctx context.Context, location string) (domain.DocumentInfo, bool, error) {
	payload, updated, err := s.fetch(ctx, location)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DocumentInfo{}, false, nil
	}
	if err != nil {
		return domain.DocumentInfo{}, false, err
	}
	return domain.DocumentInfo{Location: location, Size: int64(len(payload)), ModTime: updated.UTC()}, true, nil
}

func (s *Store) fetch(ctx context.Context, location string) ([]byte, time.Time, error) {
	var (
		payload []byte
		updated time.Time
	)
	err := s.db.QueryRowContext(ctx, `SELECT payload, updated_at FROM documents WHERE location = $1`, location).Scan(&payload, &updated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, fmt.Errorf("select %s: %w", location, err)
	}
	return payload, updated, err
}

// OverrideSQLOpen swaps the sql.Open implementation; callers must restore it.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}
