package domain

import (
	"context"
	"time"
)

// DocumentInfo describes a stored project document.
type DocumentInfo struct {
	Location string
	Size     int64
	ModTime  time.Time
}

// DocumentStore is a minimal abstraction over durable backends for saved
// project documents. Location is a file path for the file driver and an
// opaque key for database drivers.
type DocumentStore interface {
	// Write replaces the document at location atomically.
	Write(ctx context.Context, location string, data []byte) error
	// Read returns the document bytes; a missing document wraps os.ErrNotExist.
	Read(ctx context.Context, location string) ([]byte, error)
	// Stat reports whether the document exists and when it was last written.
	Stat(ctx context.Context, location string) (DocumentInfo, bool, error)
}
