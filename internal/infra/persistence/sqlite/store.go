// Package sqlite persists sessions to an embedded SQLite file. Objects live in
// the in-memory store; the whole session is written as one snapshot document
// on every commit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"ledgercore/internal/infra/persistence/memory"
	"ledgercore/internal/infra/persistence/snapshot"
	"ledgercore/pkg/datamodel"
)

// Compile-time contract assertion ensuring Store adheres to the datastore interface.
var _ datamodel.Datastore = (*Store)(nil)

const (
	// DefaultPath is used when no database path is configured.
	DefaultPath   = "ledgercore.db"
	sessionBucket = "session"
)

// Store persists the in-memory session to a single SQLite table as a JSON
// snapshot.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path and hydrates the memory
// store from the last committed snapshot. Every property set named by the
// snapshot must already be registered in reg.
func NewStore(path string, reg *datamodel.Registry) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(reg), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM state WHERE bucket = ?`, sessionBucket).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	doc, err := snapshot.Decode(payload)
	if err != nil {
		return err
	}
	if err := s.ImportState(doc); err != nil {
		return fmt.Errorf("load sqlite snapshot: %w", err)
	}
	return nil
}

// Commit writes the current session to the database.
func (s *Store) Commit(ctx context.Context) (retErr error) {
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
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, sessionBucket, data); err != nil {
		return fmt.Errorf("upsert %s: %w", sessionBucket, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
