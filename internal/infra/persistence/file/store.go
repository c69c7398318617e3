// Package file stores saved project documents as files on the local disk.
package file

import (
	"context"
	"eiscore/pkg/domain"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var _ domain.DocumentStore = (*Store)(nil)

// Store implements domain.DocumentStore; locations are file paths.
type Store struct{}

// New returns a file document store.
func New() *Store { return &Store{} }

// Write replaces the file at location atomically: the data goes to a
// temporary file in the same directory which is then renamed over the target.
func (s *Store) Write(ctx context.Context, location string, data []byte) error {
	if location == "" {
		return fmt.Errorf("write document: empty location")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(location)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(location)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), location)
}

// Read returns the file contents; a missing file wraps os.ErrNotExist.
func (s *Store) Read(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(location)
}

// Stat reports the file's size and modification time.
func (s *Store) Stat(ctx context.Context, location string) (domain.DocumentInfo, bool, error) {
	info, err := os.Stat(location)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.DocumentInfo{}, false, nil
	}
	if err != nil {
		return domain.DocumentInfo{}, false, err
	}
	return domain.DocumentInfo{Location: location, Size: info.Size(), ModTime: info.ModTime().UTC()}, true, nil
}
