package loan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledgercore/internal/core"
	"ledgercore/internal/infra/persistence/memory"
	"ledgercore/pkg/datamodel"
	"ledgercore/pkg/ledger"
	"ledgercore/plugins/loan"
)

func setup(t *testing.T) (*core.Service, *loan.Plugin, *datamodel.ExtendableObject) {
	t.Helper()
	ctx := context.Background()
	reg := datamodel.NewRegistry()
	schema, err := ledger.Register(reg)
	if err != nil {
		t.Fatalf("register ledger: %v", err)
	}
	svc := core.NewService(reg, memory.NewStore(reg))
	plugin := loan.New()
	meta, err := svc.InstallPlugin(plugin)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if got := meta.Extensions[ledger.AccountID]; len(got) != 1 || got[0] != loan.ExtensionID {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	session, err := svc.Open(ctx, schema.Session)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	addUSD := schema.AddCurrency("usd", "US Dollar", 2)
	if _, err := svc.Execute(ctx, addUSD); err != nil {
		t.Fatalf("add currency: %v", err)
	}
	usd, err := session.Object(addUSD.Created())
	if err != nil {
		t.Fatalf("currency: %v", err)
	}
	open := schema.OpenBankAccount("Mortgage", "First Bank", usd, -25000000)
	if _, err := svc.Execute(ctx, open); err != nil {
		t.Fatalf("open account: %v", err)
	}
	account, err := session.Object(open.Created())
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	return svc, plugin, account
}

func sameTerms(a, b loan.Terms) bool {
	return a.InterestRate == b.InterestRate && a.Lender == b.Lender && a.Maturity.Equal(b.Maturity)
}

func TestSetTermsIsUndoable(t *testing.T) {
	ctx := context.Background()
	svc, plugin, account := setup(t)

	before, err := plugin.Terms(account)
	if err != nil {
		t.Fatalf("terms: %v", err)
	}
	if before.IsLoan() {
		t.Fatalf("fresh account should carry default terms, got %+v", before)
	}

	maturity := time.Date(2040, 6, 1, 0, 0, 0, 0, time.UTC)
	want := loan.Terms{InterestRate: 3.25, Lender: "First Bank", Maturity: maturity}
	if _, err := svc.Execute(ctx, plugin.SetTerms(account, want)); err != nil {
		t.Fatalf("set terms: %v", err)
	}
	got, err := plugin.Terms(account)
	if err != nil {
		t.Fatalf("terms: %v", err)
	}
	if !sameTerms(got, want) {
		t.Fatalf("terms mismatch: got %+v want %+v", got, want)
	}

	if _, err := svc.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	got, _ = plugin.Terms(account)
	if got.IsLoan() || !got.Maturity.IsZero() {
		t.Fatalf("undo should restore defaults, got %+v", got)
	}
	if _, err := svc.Redo(ctx); err != nil {
		t.Fatalf("redo: %v", err)
	}
	got, _ = plugin.Terms(account)
	if !sameTerms(got, want) {
		t.Fatalf("redo mismatch: got %+v", got)
	}
}

func TestSetTermsValidates(t *testing.T) {
	ctx := context.Background()
	svc, plugin, account := setup(t)
	history := len(svc.History())
	cases := []loan.Terms{
		{InterestRate: -1, Lender: "x"},
		{InterestRate: 2},
	}
	for _, terms := range cases {
		_, err := svc.Execute(ctx, plugin.SetTerms(account, terms))
		if !errors.Is(err, loan.ErrInvalidTerms) {
			t.Fatalf("terms %+v: expected ErrInvalidTerms, got %v", terms, err)
		}
		if !errors.Is(err, datamodel.ErrOperationFailed) {
			t.Fatalf("expected operation failure category, got %v", err)
		}
	}
	if _, err := svc.Execute(ctx, plugin.SetTerms(nil, loan.Terms{})); !errors.Is(err, loan.ErrInvalidTerms) {
		t.Fatalf("nil account: %v", err)
	}
	if len(svc.History()) != history {
		t.Fatalf("failed operations must not enter the history")
	}
}

func TestYearlyInterest(t *testing.T) {
	terms := loan.Terms{InterestRate: 5, Lender: "Bank"}
	if got := terms.YearlyInterest(-100000); got != -5000 {
		t.Fatalf("unexpected interest %d", got)
	}
}

func TestPluginIdentity(t *testing.T) {
	p := loan.New()
	if p.Name() != "loan" || p.Version() == "" {
		t.Fatalf("unexpected identity %s %s", p.Name(), p.Version())
	}
	if !p.Info.IsExtension() || p.Info.ID() != loan.ExtensionID {
		t.Fatalf("loan info must be an extension set")
	}
}
