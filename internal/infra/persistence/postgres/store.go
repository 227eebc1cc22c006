// Package postgres persists sessions to PostgreSQL. Objects live in the
// in-memory store; commits upsert the whole session as a JSONB snapshot.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"ledgercore/internal/infra/persistence/memory"
	"ledgercore/internal/infra/persistence/snapshot"
	"ledgercore/pkg/datamodel"
)

// Compile-time contract assertion ensuring the store satisfies the datastore interface.
var _ datamodel.Datastore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN    = "postgres://localhost/ledgercore?sslmode=disable"
	sessionBucket = "session"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation
// for reads and writes.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using dsn (falls back to
// DefaultDSN). It ensures the snapshot table exists and hydrates the memory
// store from the last committed snapshot.
func NewStore(dsn string, reg *datamodel.Registry) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		return nil, err
	}
	doc, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(reg)
	if err := mem.ImportState(doc); err != nil {
		return nil, fmt.Errorf("load postgres snapshot: %w", err)
	}
	return &Store{Store: mem, db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (snapshot.Document, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state WHERE bucket = $1`, sessionBucket)
	if err != nil {
		return snapshot.Document{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var payload []byte
	for rows.Next() {
		var bucket string
		var raw []byte
		if err := rows.Scan(&bucket, &raw); err != nil {
			return snapshot.Document{}, fmt.Errorf("scan state: %w", err)
		}
		if bucket == sessionBucket {
			payload = raw
		}
	}
	if err := rows.Err(); err != nil {
		return snapshot.Document{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot.Decode(payload)
}

// Commit upserts the current session snapshot.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.ExportState()
	if err != nil {
		return err
	}
	data, err := snapshot.Encode(doc)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, sessionBucket, data); err != nil {
		return fmt.Errorf("upsert %s: %w", sessionBucket, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
