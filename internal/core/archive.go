package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	blob "ledgercore/internal/infra/blob/core"
	"ledgercore/internal/infra/persistence/snapshot"
)

// SnapshotContentType is the content type of archived snapshots.
const SnapshotContentType = "application/json"

// ErrArchiveUnsupported is returned when the datastore cannot export or
// import snapshots.
var ErrArchiveUnsupported = errors.New("core: datastore does not support snapshots")

// Exporter is implemented by datastores that render their state as a
// snapshot document.
type Exporter interface {
	ExportState() (snapshot.Document, error)
}

// Importer is implemented by datastores that replace their state from a
// snapshot document.
type Importer interface {
	ImportState(doc snapshot.Document) error
}

// ArchiveKey builds a time-stamped archive key below prefix.
func ArchiveKey(prefix string, at time.Time) string {
	name := at.UTC().Format("20060102T150405.000000000Z") + ".json"
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Archive writes the current datastore snapshot to blobs under key.
func (s *Service) Archive(ctx context.Context, blobs blob.Store, key string) (blob.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var info blob.Info
	err := s.run(ctx, "archive", key, func(ctx context.Context) error {
		exp, ok := s.store.(Exporter)
		if !ok {
			return ErrArchiveUnsupported
		}
		doc, err := exp.ExportState()
		if err != nil {
			return fmt.Errorf("export snapshot: %w", err)
		}
		data, err := snapshot.Encode(doc)
		if err != nil {
			return err
		}
		info, err = blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
			ContentType: SnapshotContentType,
			Metadata: map[string]string{
				"root":        doc.Root,
				"objects":     strconv.Itoa(len(doc.Objects)),
				"archived-at": s.clock.Now().UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			return fmt.Errorf("archive %s: %w", key, err)
		}
		return nil
	})
	return info, err
}

// Restore replaces the datastore contents with the archive stored under key.
// It must run before Open; the restored state is committed when the store
// supports it.
func (s *Service) Restore(ctx context.Context, blobs blob.Store, key string) (snapshot.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && !s.session.Closed() {
		return snapshot.Header{}, ErrAlreadyOpen
	}
	var header snapshot.Header
	err := s.run(ctx, "restore", key, func(ctx context.Context) error {
		imp, ok := s.store.(Importer)
		if !ok {
			return ErrArchiveUnsupported
		}
		_, rc, err := blobs.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("restore %s: %w", key, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("read archive %s: %w", key, err)
		}
		header, err = snapshot.ReadHeader(data)
		if err != nil {
			return err
		}
		doc, err := snapshot.Decode(data)
		if err != nil {
			return err
		}
		if err := imp.ImportState(doc); err != nil {
			return fmt.Errorf("import archive %s: %w", key, err)
		}
		return s.commit(ctx)
	})
	return header, err
}
