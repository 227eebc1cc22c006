package datamodel_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgercore/pkg/datamodel"
)

func TestLoanScenarioUndoRedo(t *testing.T) {
	reg := datamodel.NewRegistry()
	root := datamodel.NewPropertySet("session", nil)
	account := datamodel.NewPropertySet("Account", nil)
	accounts := root.List("accounts", account)
	balance := account.Long("balance", 0)
	loan := datamodel.NewExtensionPropertySet("LoanInfo")
	rate := loan.Double("interestRate", 0.0)
	require.NoError(t, reg.Register(root))
	require.NoError(t, reg.Register(account))
	require.NoError(t, reg.RegisterExtension(account, loan))

	session, err := datamodel.OpenSession(reg, newStore(reg), root)
	require.NoError(t, err)
	rootObj, err := session.Root()
	require.NoError(t, err)
	countBefore := session.ObjectCount()

	var created *datamodel.ExtendableObject
	op := execute(t, session, "open loan account", func(_ context.Context, e *datamodel.Edit) error {
		coll, err := accounts.Of(rootObj)
		if err != nil {
			return err
		}
		created, err = coll.CreateNewElement(e, account)
		if err != nil {
			return err
		}
		if err := balance.Set(e, created, 500); err != nil {
			return err
		}
		ext, err := created.Extension(loan)
		if err != nil {
			return err
		}
		return ext.Set(e, rate.Accessor(), 3.5)
	})
	assert.Equal(t, datamodel.StateExecuted, op.State())
	require.NotNil(t, op.RedoChanges())
	actions := make([]datamodel.Action, 0)
	for _, c := range op.RedoChanges().Changes() {
		actions = append(actions, c.Action)
	}
	assert.Equal(t, []datamodel.Action{datamodel.ActionCreate, datamodel.ActionUpdate, datamodel.ActionUpdate}, actions)

	ctx := context.Background()
	require.NoError(t, op.Undo(ctx))
	assert.Equal(t, datamodel.StateUndone, op.State())
	assert.Nil(t, op.RedoChanges())
	assert.NotNil(t, op.UndoChanges())
	assert.Equal(t, countBefore, session.ObjectCount())
	_, err = session.Object(created.Key())
	require.ErrorIs(t, err, datamodel.ErrObjectDeleted)

	require.NoError(t, op.Redo(ctx))
	assert.Equal(t, datamodel.StateExecuted, op.State())
	assert.Nil(t, op.UndoChanges())
	again, err := session.Object(created.Key())
	require.NoError(t, err)
	b, err := balance.Get(again)
	require.NoError(t, err)
	assert.Equal(t, int64(500), b)
	r, err := rate.Get(again)
	require.NoError(t, err)
	assert.Equal(t, 3.5, r)
}

func TestUndoingEveryOperationRestoresInitialState(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	ctx := context.Background()
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)
	payments, err := s.payments.Of(root)
	require.NoError(t, err)

	execute(t, session, "seed", func(_ context.Context, e *datamodel.Edit) error {
		_, err := accounts.CreateNewElementWithValues(e, s.account, []any{"Cash", int64(10)})
		return err
	})
	initial := dump(t, session)

	var checking, savings *datamodel.ExtendableObject
	ops := []*datamodel.DataOperation{
		execute(t, session, "open checking", func(_ context.Context, e *datamodel.Edit) error {
			checking, err = accounts.CreateNewElementWithValues(e, s.bank, []any{"Checking", int64(100)})
			return err
		}),
		execute(t, session, "open savings", func(_ context.Context, e *datamodel.Edit) error {
			savings, err = accounts.CreateNewElementWithValues(e, s.account, []any{"Savings", int64(0), "savings"})
			if err != nil {
				return err
			}
			subs, err := s.subAccounts.Of(savings)
			if err != nil {
				return err
			}
			_, err = subs.CreateNewElementWithValues(e, s.account, []any{"Holiday"})
			return err
		}),
		execute(t, session, "pay", func(_ context.Context, e *datamodel.Edit) error {
			pay, err := payments.CreateNewElement(e, s.payment)
			if err != nil {
				return err
			}
			if err := s.payee.SetObject(e, pay, checking); err != nil {
				return err
			}
			if err := s.amount.Set(e, pay, -2500); err != nil {
				return err
			}
			return s.memo.Set(e, pay, "rent")
		}),
		execute(t, session, "rename and tweak", func(_ context.Context, e *datamodel.Edit) error {
			if err := s.name.Set(e, checking, "Main"); err != nil {
				return err
			}
			return s.lender.Set(e, savings, "Bank of Tests")
		}),
		execute(t, session, "close savings", func(_ context.Context, e *datamodel.Edit) error {
			_, err := accounts.Remove(e, savings)
			return err
		}),
	}
	final := dump(t, session)

	for i := len(ops) - 1; i >= 0; i-- {
		require.NoError(t, ops[i].Undo(ctx), ops[i].Name())
	}
	assert.Equal(t, initial, dump(t, session))

	for _, op := range ops {
		require.NoError(t, op.Redo(ctx), op.Name())
	}
	assert.Equal(t, final, dump(t, session))

	// undo then redo of a single operation is idempotent.
	last := ops[len(ops)-1]
	require.NoError(t, last.Undo(ctx))
	require.NoError(t, last.Redo(ctx))
	assert.Equal(t, final, dump(t, session))
}

func TestOperationStateErrors(t *testing.T) {
	s := newSchema(t)
	session, _ := s.open(t)
	ctx := context.Background()

	op := datamodel.NewDataOperation(session, datamodel.NewOperation("noop", func(context.Context, *datamodel.Edit) error { return nil }))
	require.ErrorIs(t, op.Undo(ctx), datamodel.ErrIllegalUndoState)
	require.ErrorIs(t, op.Redo(ctx), datamodel.ErrIllegalRedoState)
	require.NoError(t, op.Execute(ctx))
	require.ErrorIs(t, op.Execute(ctx), datamodel.ErrIllegalExecuteState)
	require.ErrorIs(t, op.Redo(ctx), datamodel.ErrIllegalRedoState)
	require.NoError(t, op.Undo(ctx))
	require.ErrorIs(t, op.Undo(ctx), datamodel.ErrIllegalUndoState)
	require.ErrorIs(t, op.Undo(ctx), datamodel.ErrState)
}

func TestFailedOperationRollsBack(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)
	events := &eventLog{}
	session.AddListener(events.listener())
	before := dump(t, session)
	boom := errors.New("insufficient funds")

	op := datamodel.NewDataOperation(session, datamodel.NewOperation("overdraw", func(_ context.Context, e *datamodel.Edit) error {
		acct, err := accounts.CreateNewElement(e, s.account)
		if err != nil {
			return err
		}
		if err := s.balance.Set(e, acct, -10); err != nil {
			return err
		}
		return boom
	}))
	err = op.Execute(context.Background())
	require.ErrorIs(t, err, datamodel.ErrOperationFailed)
	require.ErrorIs(t, err, boom)
	var opErr *datamodel.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.True(t, opErr.RolledBack)
	assert.Equal(t, "overdraw", opErr.Operation)

	assert.Equal(t, datamodel.StateUnexecuted, op.State())
	assert.Nil(t, op.RedoChanges())
	assert.False(t, session.Changes().Recording())
	assert.Equal(t, before, dump(t, session))
	assert.Equal(t, []string{"created account", "changed balance", "changed balance", "deleted account"}, events.messages)
}

func TestInnerEditsLeftOpenAreClosed(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)
	ctx := context.Background()
	boom := errors.New("bad input")

	failing := datamodel.NewDataOperation(session, datamodel.NewOperation("leaky failure", func(_ context.Context, e *datamodel.Edit) error {
		inner := e.Session().Changes().StartRecording()
		if _, err := accounts.CreateNewElement(inner, s.account); err != nil {
			return err
		}
		return boom
	}))
	err = failing.Execute(ctx)
	require.ErrorIs(t, err, boom)
	var opErr *datamodel.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.True(t, opErr.RolledBack)
	assert.False(t, session.Changes().Recording())
	assert.Zero(t, accounts.Size())

	leaky := datamodel.NewDataOperation(session, datamodel.NewOperation("leaky success", func(_ context.Context, e *datamodel.Edit) error {
		inner := e.Session().Changes().StartRecording()
		_, err := accounts.CreateNewElement(inner, s.account)
		return err
	}))
	require.NoError(t, leaky.Execute(ctx))
	assert.False(t, session.Changes().Recording())
	assert.False(t, leaky.Merged())
	require.NotNil(t, leaky.RedoChanges())
	assert.Equal(t, 1, leaky.RedoChanges().Len())

	next := execute(t, session, "add", func(_ context.Context, e *datamodel.Edit) error {
		_, err := accounts.CreateNewElement(e, s.account)
		return err
	})
	assert.False(t, next.Merged())
	assert.Equal(t, 2, accounts.Size())
	require.NoError(t, next.Undo(ctx))
	require.NoError(t, leaky.Undo(ctx))
	assert.Zero(t, accounts.Size())
}

func TestOperationClosingItsOwnEditFails(t *testing.T) {
	s := newSchema(t)
	session, _ := s.open(t)

	op := datamodel.NewDataOperation(session, datamodel.NewOperation("rogue", func(_ context.Context, e *datamodel.Edit) error {
		_, err := e.Session().Changes().TakeUndoableChange(e)
		return err
	}))
	err := op.Execute(context.Background())
	require.ErrorIs(t, err, datamodel.ErrOperationFailed)
	require.ErrorIs(t, err, datamodel.ErrNotRecording)
	assert.Equal(t, datamodel.StateUnexecuted, op.State())
	assert.False(t, session.Changes().Recording())
}

func TestOperationInsideRecordingIsMerged(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)
	ctx := context.Background()

	outer := session.Changes().StartRecording()
	inner := datamodel.NewDataOperation(session, datamodel.NewOperation("add", func(_ context.Context, e *datamodel.Edit) error {
		_, err := accounts.CreateNewElement(e, s.account)
		return err
	}))
	require.NoError(t, inner.Execute(ctx))
	assert.True(t, inner.Merged())
	require.ErrorIs(t, inner.Undo(ctx), datamodel.ErrIllegalUndoState)

	change, err := session.Changes().TakeUndoableChange(outer)
	require.NoError(t, err)
	assert.Equal(t, 1, change.Len())
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	s := newSchema(t)
	session, _ := s.open(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	op := datamodel.NewDataOperation(session, datamodel.NewOperation("late", func(context.Context, *datamodel.Edit) error { return nil }))
	require.ErrorIs(t, op.Execute(ctx), context.Canceled)
	assert.Equal(t, datamodel.StateUnexecuted, op.State())
}
