package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreWriteReadStat(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docs", "eis.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	if _, err := store.Read(ctx, "p1"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if _, ok, err := store.Stat(ctx, "p1"); ok || err != nil {
		t.Fatalf("expected missing stat, got %v %v", ok, err)
	}
	if err := store.Write(ctx, "p1", []byte(`{"version":3}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Write(ctx, "p1", []byte(`{"version":3,"mode":"storage"}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err := store.Read(ctx, "p1")
	if err != nil || string(data) != `{"version":3,"mode":"storage"}` {
		t.Fatalf("read: %s %v", data, err)
	}
	info, ok, err := store.Stat(ctx, "p1")
	if err != nil || !ok {
		t.Fatalf("stat: %v %v", ok, err)
	}
	if info.Size != int64(len(data)) || !info.ModTime.Equal(fixed) {
		t.Fatalf("unexpected info %+v", info)
	}
	var rows int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&rows); err != nil || rows != 1 {
		t.Fatalf("expected one row, got %d %v", rows, err)
	}
}

func TestStoreReopenKeepsDocuments(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "eis.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Write(ctx, "a", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if data, err := reopened.Read(ctx, "a"); err != nil || string(data) != "x" {
		t.Fatalf("read after reopen: %q %v", data, err)
	}
	if reopened.Path() != path {
		t.Fatalf("unexpected path %s", reopened.Path())
	}
}
