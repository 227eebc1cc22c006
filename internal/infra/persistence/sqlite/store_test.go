package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"ledgercore/pkg/datamodel"
	"ledgercore/pkg/ledger"
)

func openLedger(t *testing.T, path string) (*Store, *ledger.Schema, *datamodel.Session) {
	t.Helper()
	reg := datamodel.NewRegistry()
	schema, err := ledger.Register(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	store, err := NewStore(path, reg)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	session, err := datamodel.OpenSession(reg, store, schema.Session)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return store, schema, session
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	store, schema, session := openLedger(t, path)
	if store.Path() != path {
		t.Fatalf("unexpected path %s", store.Path())
	}
	op := datamodel.NewDataOperation(session, schema.AddCurrency("CHF", "Swiss Franc", 2))
	if err := op.Execute(ctx); err != nil {
		t.Fatalf("add currency: %v", err)
	}
	if err := store.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	root := store.Root()

	reloaded, schema2, session2 := openLedger(t, path)
	if reloaded.Root() != root {
		t.Fatalf("expected root %s, got %s", root, reloaded.Root())
	}
	chf, err := schema2.FindCurrency(session2, "CHF")
	if err != nil {
		t.Fatalf("find currency: %v", err)
	}
	if chf.Key() != op.RedoChanges().Changes()[0].Object {
		t.Fatalf("expected currency key to survive reload")
	}
}

func TestSQLiteStoreWithoutCommitStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, _, _ := openLedger(t, path)
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows before commit, got %d", count)
	}
	if store.Count() != 1 {
		t.Fatalf("expected only the root object, got %d", store.Count())
	}
}
