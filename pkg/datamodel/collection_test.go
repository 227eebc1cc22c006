package datamodel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgercore/pkg/datamodel"
)

func TestCreateNewElementWithValuesReadsBack(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)

	opened := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	edit(t, session, func(e *datamodel.Edit) {
		acct, err := accounts.CreateNewElementWithValues(e, s.bank, []any{"Savings", int64(900), "savings", opened})
		require.NoError(t, err)

		name, err := s.name.Get(acct)
		require.NoError(t, err)
		assert.Equal(t, "Savings", name)
		balance, err := s.balance.Get(acct)
		require.NoError(t, err)
		assert.Equal(t, int64(900), balance)
		kind, err := s.kind.Get(acct)
		require.NoError(t, err)
		assert.Equal(t, "savings", kind)
		got, err := s.opened.Get(acct)
		require.NoError(t, err)
		assert.Equal(t, opened, got)

		// Omitted trailing properties read back as defaults.
		bank, err := s.bankName.Get(acct)
		require.NoError(t, err)
		assert.Equal(t, "", bank)
		rate, err := s.rate.Get(acct)
		require.NoError(t, err)
		assert.Equal(t, 0.0, rate)

		skipped, err := accounts.CreateNewElementWithValues(e, s.account, []any{nil, int64(5)})
		require.NoError(t, err)
		name, err = s.name.Get(skipped)
		require.NoError(t, err)
		assert.Equal(t, "", name)
	})
}

func TestCreateNewElementRejectsBadInput(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)

	e := session.Changes().StartRecording()
	_, err = accounts.CreateNewElementWithValues(e, s.account, []any{"a", int64(1), "checking", time.Time{}, "extra", 1.0, "x", "too many"})
	require.ErrorIs(t, err, datamodel.ErrInvalidValue)
	_, err = accounts.CreateNewElementWithValues(e, s.account, []any{42})
	require.ErrorIs(t, err, datamodel.ErrInvalidValue)
	_, err = accounts.CreateNewElement(e, s.payment)
	require.ErrorIs(t, err, datamodel.ErrIncompatibleType)
	_, err = accounts.CreateNewElement(e, s.loan)
	require.ErrorIs(t, err, datamodel.ErrIncompatibleType)
	require.ErrorIs(t, accounts.Add(root), datamodel.ErrUnsupportedOperation)

	assert.Empty(t, session.Changes().Pending())
	assert.Equal(t, 1, session.ObjectCount())
	_, err = session.Changes().TakeUndoableChange(e)
	require.NoError(t, err)
}

func TestAbstractSetsCannotBeInstantiated(t *testing.T) {
	reg := datamodel.NewRegistry()
	root := datamodel.NewPropertySet("root", nil)
	shape := datamodel.NewPropertySet("shape", nil).Abstract()
	square := datamodel.NewPropertySet("square", shape)
	shapes := root.List("shapes", shape)
	side := square.Integer("side", 1)
	for _, ps := range []*datamodel.PropertySet{root, shape, square} {
		require.NoError(t, reg.Register(ps))
	}
	session, err := datamodel.OpenSession(reg, newStore(reg), root)
	require.NoError(t, err)
	rootObj, err := session.Root()
	require.NoError(t, err)
	coll, err := shapes.Of(rootObj)
	require.NoError(t, err)

	edit(t, session, func(e *datamodel.Edit) {
		_, err := coll.CreateNewElement(e, shape)
		require.ErrorIs(t, err, datamodel.ErrIncompatibleType)
		sq, err := coll.CreateNewElement(e, square)
		require.NoError(t, err)
		v, err := side.Get(sq)
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	})
}

func TestRemoveNonMemberIsSilent(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)

	var parent, child *datamodel.ExtendableObject
	edit(t, session, func(e *datamodel.Edit) {
		parent, err = accounts.CreateNewElement(e, s.account)
		require.NoError(t, err)
		subs, err := s.subAccounts.Of(parent)
		require.NoError(t, err)
		child, err = subs.CreateNewElement(e, s.account)
		require.NoError(t, err)
	})

	events := &eventLog{}
	session.AddListener(events.listener())
	change := edit(t, session, func(e *datamodel.Edit) {
		removed, err := accounts.Remove(e, child)
		require.NoError(t, err)
		assert.False(t, removed)
		removed, err = accounts.Remove(e, nil)
		require.NoError(t, err)
		assert.False(t, removed)
	})
	assert.True(t, change.Empty())
	assert.Zero(t, events.deleted)
	assert.Zero(t, events.lists)
	assert.True(t, child.Live())
}

func TestRemoveMemberFiresOnceAndInvalidatesKey(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)

	var acct, sub *datamodel.ExtendableObject
	edit(t, session, func(e *datamodel.Edit) {
		acct, err = accounts.CreateNewElementWithValues(e, s.account, []any{"Checking"})
		require.NoError(t, err)
		subs, err := s.subAccounts.Of(acct)
		require.NoError(t, err)
		sub, err = subs.CreateNewElement(e, s.account)
		require.NoError(t, err)
	})
	require.Equal(t, 3, session.ObjectCount())

	events := &eventLog{}
	session.AddListener(events.listener())
	change := edit(t, session, func(e *datamodel.Edit) {
		removed, err := accounts.Remove(e, acct)
		require.NoError(t, err)
		assert.True(t, removed)
	})
	assert.Equal(t, 1, change.Len())
	assert.Equal(t, 1, events.deleted)
	assert.Equal(t, 1, events.lists)
	assert.Equal(t, 1, session.ObjectCount())
	assert.Zero(t, accounts.Size())
	assert.False(t, accounts.Contains(acct))

	_, err = s.name.Get(acct)
	require.ErrorIs(t, err, datamodel.ErrObjectDeleted)
	require.ErrorIs(t, err, datamodel.ErrState)
	_, err = s.name.Get(sub)
	require.ErrorIs(t, err, datamodel.ErrObjectDeleted)
	_, err = session.Object(acct.Key())
	require.ErrorIs(t, err, datamodel.ErrObjectDeleted)
}

func TestRemoveRequiresEdit(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)
	var acct *datamodel.ExtendableObject
	edit(t, session, func(e *datamodel.Edit) {
		acct, err = accounts.CreateNewElement(e, s.account)
		require.NoError(t, err)
	})
	_, err = accounts.Remove(nil, acct)
	require.ErrorIs(t, err, datamodel.ErrImmutableObject)
	assert.True(t, accounts.Contains(acct))
}

func TestBulkRemovalRepeatsRemove(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)

	var all []*datamodel.ExtendableObject
	edit(t, session, func(e *datamodel.Edit) {
		for _, name := range []string{"a", "b", "c", "d"} {
			obj, err := accounts.CreateNewElementWithValues(e, s.account, []any{name})
			require.NoError(t, err)
			all = append(all, obj)
		}
	})

	events := &eventLog{}
	session.AddListener(events.listener())
	change := edit(t, session, func(e *datamodel.Edit) {
		changed, err := accounts.RetainAll(e, []*datamodel.ExtendableObject{all[1], all[3]})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, []*datamodel.ExtendableObject{all[1], all[3]}, accounts.Elements())

		changed, err = accounts.RemoveAll(e, []*datamodel.ExtendableObject{all[0], all[1]})
		require.NoError(t, err)
		assert.True(t, changed)

		require.NoError(t, accounts.Clear(e))
	})
	assert.Equal(t, 4, change.Len())
	assert.Equal(t, 4, events.deleted)
	assert.Equal(t, 4, events.lists)
	assert.Zero(t, accounts.Size())
}

func TestRemoveRefusesReferencedObjects(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)
	payments, err := s.payments.Of(root)
	require.NoError(t, err)

	var acct, pay *datamodel.ExtendableObject
	edit(t, session, func(e *datamodel.Edit) {
		acct, err = accounts.CreateNewElement(e, s.account)
		require.NoError(t, err)
		pay, err = payments.CreateNewElement(e, s.payment)
		require.NoError(t, err)
		require.NoError(t, s.payee.SetObject(e, pay, acct))
	})

	edit(t, session, func(e *datamodel.Edit) {
		_, err := accounts.Remove(e, acct)
		require.ErrorIs(t, err, datamodel.ErrReferenceViolation)
		assert.True(t, accounts.Contains(acct))

		removed, err := payments.Remove(e, pay)
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = accounts.Remove(e, acct)
		require.NoError(t, err)
		assert.True(t, removed)
	})
}
