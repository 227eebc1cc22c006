package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	blob "ledgercore/internal/infra/blob/core"
	blobmemory "ledgercore/internal/infra/blob/memory"
)

func TestArchiveKey(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 6, 7, time.FixedZone("CET", 3600))
	if got := ArchiveKey("archives", at); got != "archives/20240309T130506.000000007Z.json" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := ArchiveKey("", at); got != "20240309T130506.000000007Z.json" {
		t.Fatalf("unexpected bare key %q", got)
	}
}

func TestArchiveAndRestore(t *testing.T) {
	ctx := context.Background()
	blobs := blobmemory.New()

	src := newLedgerFixture(t)
	src.open(t)
	src.addCurrency(t, "USD")
	src.addCurrency(t, "EUR")

	info, err := src.svc.Archive(ctx, blobs, "archives/one.json")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if info.ContentType != SnapshotContentType || info.Metadata["root"] == "" || info.Metadata["objects"] != "3" {
		t.Fatalf("unexpected archive info %+v", info)
	}
	if _, err := src.svc.Archive(ctx, blobs, "archives/one.json"); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected write-once archive, got %v", err)
	}

	dst := newLedgerFixture(t)
	header, err := dst.svc.Restore(ctx, blobs, "archives/one.json")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if header.Objects != 3 || header.Root != info.Metadata["root"] {
		t.Fatalf("unexpected header %+v", header)
	}
	if dst.store.commits != 1 {
		t.Fatalf("restore should commit, got %d commits", dst.store.commits)
	}
	dst.open(t)
	if got := dst.currencies(t); !reflect.DeepEqual(got, []string{"USD", "EUR"}) {
		t.Fatalf("restored currencies %v", got)
	}
	if _, err := dst.svc.Restore(ctx, blobs, "archives/one.json"); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("expected ErrAlreadyOpen while open, got %v", err)
	}
}

func TestRestoreMissingArchive(t *testing.T) {
	f := newLedgerFixture(t)
	if _, err := f.svc.Restore(context.Background(), blobmemory.New(), "missing.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArchiveNeedsSnapshotSupport(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.svc = NewService(f.svc.Registry(), bareStore{Datastore: f.store})
	f.open(t)
	if _, err := f.svc.Archive(ctx, blobmemory.New(), "a.json"); !errors.Is(err, ErrArchiveUnsupported) {
		t.Fatalf("expected ErrArchiveUnsupported, got %v", err)
	}
	f.svc.Close()
	if _, err := f.svc.Restore(ctx, blobmemory.New(), "a.json"); !errors.Is(err, ErrArchiveUnsupported) {
		t.Fatalf("expected ErrArchiveUnsupported from restore, got %v", err)
	}
}
