package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledgercore/internal/infra/persistence/memory"
	"ledgercore/pkg/datamodel"
	"ledgercore/pkg/ledger"
)

// committingStore counts commits and can be told to fail them.
type committingStore struct {
	*memory.Store
	commits int
	fail    error
}

func (c *committingStore) Commit(context.Context) error {
	if c.fail != nil {
		return c.fail
	}
	c.commits++
	return nil
}

type bareStore struct {
	datamodel.Datastore
}

type stubClock struct{ t time.Time }

func (s *stubClock) Now() time.Time {
	s.t = s.t.Add(time.Millisecond)
	return s.t
}

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

type ledgerFixture struct {
	svc    *Service
	schema *ledger.Schema
	store  *committingStore
}

func newLedgerFixture(t *testing.T, opts ...ServiceOption) *ledgerFixture {
	t.Helper()
	reg := datamodel.NewRegistry()
	schema, err := ledger.Register(reg)
	if err != nil {
		t.Fatalf("register ledger: %v", err)
	}
	store := &committingStore{Store: memory.NewStore(reg)}
	return &ledgerFixture{svc: NewService(reg, store, opts...), schema: schema, store: store}
}

func (f *ledgerFixture) open(t *testing.T) *datamodel.Session {
	t.Helper()
	session, err := f.svc.Open(context.Background(), f.schema.Session)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return session
}

func (f *ledgerFixture) addCurrency(t *testing.T, code string) *datamodel.ExtendableObject {
	t.Helper()
	op := f.schema.AddCurrency(code, code, 2)
	if _, err := f.svc.Execute(context.Background(), op); err != nil {
		t.Fatalf("add currency %s: %v", code, err)
	}
	obj, err := f.svc.Session().Object(op.Created())
	if err != nil {
		t.Fatalf("currency %s: %v", code, err)
	}
	return obj
}

func (f *ledgerFixture) currencies(t *testing.T) []string {
	t.Helper()
	root, err := f.svc.Session().Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	list, err := f.schema.CurrencyList.Of(root)
	if err != nil {
		t.Fatalf("currency list: %v", err)
	}
	var codes []string
	for _, c := range list.Elements() {
		code, err := f.schema.CurrencyCode.Get(c)
		if err != nil {
			t.Fatalf("code: %v", err)
		}
		codes = append(codes, code)
	}
	return codes
}

var errBoom = errors.New("boom")
