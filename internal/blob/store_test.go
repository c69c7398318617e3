package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func drivers(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
		"s3":     NewMockS3ForTests(),
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			meta := map[string]string{"label": "cell a", "location": "/tmp/a.json"}
			if _, err := store.Put(ctx, "recovery/p1.json", bytes.NewReader([]byte(`{"v":1}`)), PutOptions{ContentType: "application/json", Metadata: meta}); err != nil {
				t.Fatalf("put: %v", err)
			}
			meta["label"] = "mutated"
			if _, err := store.Put(ctx, "recovery/p1.json", bytes.NewReader([]byte(`{"v":2}`)), PutOptions{ContentType: "application/json", Metadata: map[string]string{"label": "cell b"}}); err != nil {
				t.Fatalf("replace: %v", err)
			}
			info, rc, err := store.Get(ctx, "recovery/p1.json")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			body, _ := io.ReadAll(rc)
			_ = rc.Close()
			if string(body) != `{"v":2}` {
				t.Fatalf("expected replaced content, got %q", body)
			}
			if info.Metadata["label"] != "cell b" {
				t.Fatalf("expected replaced metadata, got %+v", info.Metadata)
			}
			head, err := store.Head(ctx, "recovery/p1.json")
			if err != nil || head.Size != int64(len(body)) {
				t.Fatalf("head: %+v %v", head, err)
			}
			if _, err := store.Put(ctx, "other/x.json", bytes.NewReader([]byte("x")), PutOptions{}); err != nil {
				t.Fatalf("put other: %v", err)
			}
			list, err := store.List(ctx, "recovery/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 1 || list[0].Key != "recovery/p1.json" {
				t.Fatalf("unexpected listing %+v", list)
			}
			existed, err := store.Delete(ctx, "recovery/p1.json")
			if err != nil || !existed {
				t.Fatalf("delete: %v %v", existed, err)
			}
			existed, err = store.Delete(ctx, "recovery/p1.json")
			if err != nil || existed {
				t.Fatalf("second delete: %v %v", existed, err)
			}
			if _, err := store.Head(ctx, "recovery/p1.json"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound from head, got %v", err)
			}
			if _, _, err := store.Get(ctx, "recovery/p1.json"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound from get, got %v", err)
			}
		})
	}
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem: %v", err)
	}
	for _, key := range []string{"", "../escape", "/abs", "a.meta"} {
		if _, err := store.Put(context.Background(), key, bytes.NewReader(nil), PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Options{Driver: DriverMemory})
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("memory: %v %v", s, err)
	}
	s, err = Open(ctx, Options{Dir: t.TempDir()})
	if err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("default fs: %v %v", s, err)
	}
	if _, err := Open(ctx, Options{}); err == nil {
		t.Fatalf("expected fs driver without dir to fail")
	}
	if _, err := Open(ctx, Options{Driver: DriverS3}); err == nil {
		t.Fatalf("expected s3 without bucket to fail")
	}
	if _, err := Open(ctx, Options{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}
