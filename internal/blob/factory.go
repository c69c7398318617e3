package blob

import (
	"context"
	"eiscore/internal/infra/blob/fs"
	infraS3 "eiscore/internal/infra/blob/s3"
	"fmt"
)

// S3Config configures the S3 driver.
type S3Config = infraS3.Config

// Options selects and configures the recovery-area backend.
type Options struct {
	Driver Driver
	// Dir is the filesystem root when Driver is DriverFilesystem.
	Dir string
	// S3 configures DriverS3.
	S3 S3Config
}

// Open returns the Store described by opts. An empty driver means the
// filesystem driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		if opts.Dir == "" {
			return nil, fmt.Errorf("blob: filesystem driver requires a directory")
		}
		return NewFilesystem(opts.Dir)
	case DriverS3:
		return infraS3.New(ctx, opts.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem returns a store rooted at root, creating the directory.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewMockS3ForTests returns the S3 driver wired to an in-process fake bucket.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
