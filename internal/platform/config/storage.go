package config

import (
	"context"
	"fmt"

	blob "ledgercore/internal/infra/blob/core"
	blobfs "ledgercore/internal/infra/blob/fs"
	blobmemory "ledgercore/internal/infra/blob/memory"
	blobs3 "ledgercore/internal/infra/blob/s3"
	"ledgercore/internal/infra/persistence/memory"
	"ledgercore/internal/infra/persistence/postgres"
	"ledgercore/internal/infra/persistence/sqlite"
	"ledgercore/pkg/datamodel"
)

// OpenDatastore opens the datastore selected by StorageDriver. SQLite and
// Postgres stores must be closed by the caller; both implement io.Closer.
func OpenDatastore(cfg Config, reg *datamodel.Registry) (datamodel.Datastore, error) {
	switch cfg.StorageDriver {
	case StorageMemory:
		return memory.NewStore(reg), nil
	case StorageSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLitePath, reg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(cfg.PostgresDSN, reg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.StorageDriver)
	}
}

// OpenArchive opens the blob store selected by ArchiveDriver.
func OpenArchive(ctx context.Context, cfg Config) (blob.Store, error) {
	switch blob.Driver(cfg.ArchiveDriver) {
	case blob.DriverFilesystem, "":
		store, err := blobfs.New(cfg.ArchiveFSRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case blob.DriverMemory:
		return blobmemory.New(), nil
	case blob.DriverS3:
		store, err := blobs3.New(ctx, blobs3.Config{
			Region:    cfg.ArchiveS3Region,
			Bucket:    cfg.ArchiveS3Bucket,
			Endpoint:  cfg.ArchiveS3Endpoint,
			PathStyle: cfg.ArchiveS3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", cfg.ArchiveDriver)
	}
}
