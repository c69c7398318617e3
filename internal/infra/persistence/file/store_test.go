package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReplacesAtomically(t *testing.T) {
	ctx := context.Background()
	s := New()
	loc := filepath.Join(t.TempDir(), "nested", "p.json")
	if _, ok, err := s.Stat(ctx, loc); ok || err != nil {
		t.Fatalf("expected missing document, got %v %v", ok, err)
	}
	if _, err := s.Read(ctx, loc); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if err := s.Write(ctx, loc, []byte("one")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(ctx, loc, []byte("second")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	data, err := s.Read(ctx, loc)
	if err != nil || string(data) != "second" {
		t.Fatalf("read: %q %v", data, err)
	}
	info, ok, err := s.Stat(ctx, loc)
	if err != nil || !ok || info.Size != 6 || info.ModTime.IsZero() {
		t.Fatalf("stat: %+v %v %v", info, ok, err)
	}
	entries, err := os.ReadDir(filepath.Dir(loc))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected only the document in its directory, got %v %v", entries, err)
	}
	if err := s.Write(ctx, "", nil); err == nil {
		t.Fatalf("expected empty location to fail")
	}
}
