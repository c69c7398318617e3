package core

import (
	"context"
	"eiscore/internal/config"
	"eiscore/internal/infra/persistence/file"
	"eiscore/internal/infra/persistence/postgres"
	"eiscore/internal/infra/persistence/sqlite"
	"eiscore/pkg/domain"
	"fmt"
)

// OpenDocumentStore selects the backend for saved project documents from the
// storage section of cfg:
//
//	file:     locations are file paths (default)
//	sqlite:   locations are keys in storage.sqlite_path (default <state>/projects.db)
//	postgres: locations are keys in a documents table at storage.postgres_dsn
//
// Stores that hold a connection also implement io.Closer.
func OpenDocumentStore(ctx context.Context, cfg config.Config) (domain.DocumentStore, error) {
	switch cfg.Storage.Driver {
	case config.StorageFile, "":
		return file.New(), nil
	case config.StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath())
	case config.StoragePostgres:
		return postgres.NewStore(ctx, cfg.Storage.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Storage.Driver)
	}
}
