package fs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"eiscore/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "recovery"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStorePutHeadGetListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return at }

	body := []byte(`{"version":3}`)
	info, err := store.Put(ctx, "snapshots/p1.json", bytes.NewReader(body), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"label": "Cell"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	sum := sha256.Sum256(body)
	if info.Key != "snapshots/p1.json" || info.Size != int64(len(body)) || info.ETag != hex.EncodeToString(sum[:]) || !info.LastModified.Equal(at) {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "snapshots/p2.json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("put p2: %v", err)
	}
	if _, err := store.Put(ctx, "other/p3.json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("put p3: %v", err)
	}

	h, err := store.Head(ctx, "snapshots/p1.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if h.ContentType != "application/json" || h.Metadata["label"] != "Cell" || h.ETag != info.ETag {
		t.Fatalf("unexpected head %+v", h)
	}
	g, rc, err := store.Get(ctx, "snapshots/p1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !bytes.Equal(got, body) || g.ETag != h.ETag {
		t.Fatalf("unexpected get %q %+v", got, g)
	}

	list, err := store.List(ctx, "snapshots/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "snapshots/p1.json" || list[1].Key != "snapshots/p2.json" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %v %+v", err, all)
	}

	ok, err := store.Delete(ctx, "snapshots/p1.json")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "snapshots/p1.json")
	if err != nil || ok {
		t.Fatalf("second delete should report false: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, "snapshots/p1.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "snapshots/p1.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "snapshots", "p1.json.meta")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("sidecar left behind: %v", err)
	}
}

func TestStoreOverwriteReplacesContent(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "p.json", bytes.NewReader([]byte("first")), core.PutOptions{Metadata: map[string]string{"label": "a"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := store.Put(ctx, "p.json", bytes.NewReader([]byte("second!")), core.PutOptions{})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if info.Size != 7 || len(info.Metadata) != 0 {
		t.Fatalf("unexpected info %+v", info)
	}
	_, rc, err := store.Get(ctx, "p.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "second!" {
		t.Fatalf("unexpected content %q", got)
	}
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected data and sidecar only, got %d entries", len(entries))
	}
}

func TestStoreRejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", "  ", "../escape.json", "/abs.json", "p.json.meta"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
			t.Fatalf("expected put %q to fail", key)
		}
		if _, err := store.Head(ctx, key); err == nil || errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected head %q to fail on the key, got %v", key, err)
		}
	}
	if _, err := New(" "); err == nil {
		t.Fatalf("expected empty root to fail")
	}
}

func TestStorePutHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "p.json", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	list, err := store.List(context.Background(), "")
	if err != nil || len(list) != 0 {
		t.Fatalf("cancelled put left blobs: %v %+v", err, list)
	}
}
