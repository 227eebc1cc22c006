// Package config loads ledgercore settings from LEDGERCORE_* environment
// variables and opens the datastore, archive store and logger they select.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"ledgercore/internal/core"
	blob "ledgercore/internal/infra/blob/core"
)

// Storage drivers accepted by LEDGERCORE_STORAGE_DRIVER.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config is the process configuration.
type Config struct {
	StorageDriver string `env:"LEDGERCORE_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"LEDGERCORE_SQLITE_PATH"`
	PostgresDSN   string `env:"LEDGERCORE_POSTGRES_DSN"`

	LogLevel  string `env:"LEDGERCORE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LEDGERCORE_LOG_FORMAT" envDefault:"json"`

	HistoryLimit int `env:"LEDGERCORE_HISTORY_LIMIT" envDefault:"100"`

	ArchiveDriver string `env:"LEDGERCORE_ARCHIVE_DRIVER" envDefault:"fs"`
	ArchiveFSRoot string `env:"LEDGERCORE_ARCHIVE_FS_ROOT" envDefault:"./archives"`
	ArchivePrefix string `env:"LEDGERCORE_ARCHIVE_PREFIX" envDefault:"snapshots"`

	ArchiveS3Bucket    string `env:"LEDGERCORE_ARCHIVE_S3_BUCKET"`
	ArchiveS3Region    string `env:"LEDGERCORE_ARCHIVE_S3_REGION"`
	ArchiveS3Endpoint  string `env:"LEDGERCORE_ARCHIVE_S3_ENDPOINT"`
	ArchiveS3PathStyle bool   `env:"LEDGERCORE_ARCHIVE_S3_PATH_STYLE"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the environment configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	cfg.ArchiveDriver = strings.ToLower(strings.TrimSpace(cfg.ArchiveDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot be opened.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	switch blob.Driver(c.ArchiveDriver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.ArchiveS3Bucket == "" {
			return fmt.Errorf("archive driver s3 requires LEDGERCORE_ARCHIVE_S3_BUCKET")
		}
	default:
		return fmt.Errorf("unknown archive driver %q", c.ArchiveDriver)
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("history limit must be positive, got %d", c.HistoryLimit)
	}
	return nil
}

// ServiceOptions returns the service options implied by the configuration.
func (c Config) ServiceOptions() []core.ServiceOption {
	return []core.ServiceOption{core.WithHistoryLimit(c.HistoryLimit)}
}
