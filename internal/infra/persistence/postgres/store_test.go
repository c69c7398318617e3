package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"eiscore/internal/infra/persistence/postgres/testutil"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		if driver != defaultDriver || dsn != defaultDSN {
			t.Fatalf("unexpected open %s %s", driver, dsn)
		}
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, conn
}

func TestStoreCreatesTableAndUpserts(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	if len(conn.Execs) == 0 || !strings.Contains(conn.Execs[0], "CREATE TABLE IF NOT EXISTS documents") {
		t.Fatalf("expected documents DDL, got %v", conn.Execs)
	}
	if _, err := store.Read(ctx, "p1"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if _, ok, err := store.Stat(ctx, "p1"); ok || err != nil {
		t.Fatalf("expected missing, got %v %v", ok, err)
	}
	if err := store.Write(ctx, "p1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Write(ctx, "p1", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := store.Write(ctx, "p2", []byte(`{}`)); err != nil {
		t.Fatalf("write p2: %v", err)
	}
	if rows := conn.Rows("documents"); len(rows) != 2 {
		t.Fatalf("expected two rows, got %v", rows)
	}
	data, err := store.Read(ctx, "p1")
	if err != nil || string(data) != `{"a":2}` {
		t.Fatalf("read: %s %v", data, err)
	}
	info, ok, err := store.Stat(ctx, "p1")
	if err != nil || !ok || info.Size != 7 || !info.ModTime.Equal(fixed) {
		t.Fatalf("stat: %+v %v %v", info, ok, err)
	}
}

func TestStoreSurfacesDriverErrors(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	conn.FailTables = map[string]bool{"documents": true}
	if err := store.Write(ctx, "p", []byte(`{}`)); err == nil {
		t.Fatalf("expected write failure")
	}
	if _, err := store.Read(ctx, "p"); err == nil || errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected query failure, got %v", err)
	}
	if err := store.Write(ctx, "", nil); err == nil {
		t.Fatalf("expected empty location to fail")
	}
}

func TestNewStoreFailsWhenPingFails(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailExec = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://example"); err == nil {
		t.Fatalf("expected ping failure")
	}
}
