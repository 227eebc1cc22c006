package datamodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgercore/pkg/datamodel"
)

func TestNestedRecordingSharesOuterLog(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)
	cm := session.Changes()

	outer := cm.StartRecording()
	assert.False(t, outer.Nested())
	_, err = accounts.CreateNewElement(outer, s.account)
	require.NoError(t, err)

	inner := cm.StartRecording()
	assert.True(t, inner.Nested())
	_, err = accounts.CreateNewElement(inner, s.account)
	require.NoError(t, err)

	_, err = cm.TakeUndoableChange(outer)
	require.ErrorIs(t, err, datamodel.ErrNotRecording)

	nested, err := cm.TakeUndoableChange(inner)
	require.NoError(t, err)
	assert.Nil(t, nested)
	assert.True(t, cm.Recording())

	change, err := cm.TakeUndoableChange(outer)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, 2, change.Len())
	assert.False(t, cm.Recording())

	_, err = cm.TakeUndoableChange(outer)
	require.ErrorIs(t, err, datamodel.ErrNotRecording)
}

func TestChangeRecordsCarryInverseData(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)

	var acct *datamodel.ExtendableObject
	change := edit(t, session, func(e *datamodel.Edit) {
		acct, err = accounts.CreateNewElement(e, s.account)
		require.NoError(t, err)
		require.NoError(t, s.name.Set(e, acct, "Cash"))
		removed, err := accounts.Remove(e, acct)
		require.NoError(t, err)
		require.True(t, removed)
	})

	records := change.Changes()
	require.Len(t, records, 3)
	assert.Equal(t, datamodel.ActionCreate, records[0].Action)
	assert.Equal(t, accounts.ListKey(), records[0].List)
	assert.Equal(t, 0, records[0].Index)

	assert.Equal(t, datamodel.ActionUpdate, records[1].Action)
	assert.Same(t, s.name.Accessor(), records[1].Accessor)
	assert.Equal(t, "", records[1].Before)
	assert.Equal(t, "Cash", records[1].After)

	assert.Equal(t, datamodel.ActionDelete, records[2].Action)
	assert.Equal(t, acct.Key(), records[2].State.Key)
	assert.Equal(t, "Cash", records[2].State.Values[s.name.Accessor()])
}

func TestUndoChangesAppliesInversesInReverse(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)
	before := dump(t, session)

	change := edit(t, session, func(e *datamodel.Edit) {
		acct, err := accounts.CreateNewElement(e, s.account)
		require.NoError(t, err)
		subs, err := s.subAccounts.Of(acct)
		require.NoError(t, err)
		sub, err := subs.CreateNewElement(e, s.account)
		require.NoError(t, err)
		require.NoError(t, s.name.Set(e, sub, "Petty cash"))
	})
	after := dump(t, session)

	events := &eventLog{}
	session.AddListener(events.listener())
	inverse := edit(t, session, func(e *datamodel.Edit) {
		require.NoError(t, change.UndoChanges(e))
	})
	assert.Equal(t, before, dump(t, session))
	assert.Equal(t, []string{"changed name", "deleted account", "deleted account"}, events.messages)
	assert.Equal(t, 3, inverse.Len())

	edit(t, session, func(e *datamodel.Edit) {
		require.NoError(t, inverse.UndoChanges(e))
	})
	assert.Equal(t, after, dump(t, session))

	require.ErrorIs(t, change.UndoChanges(nil), datamodel.ErrImmutableObject)
}

func TestRollbackRevertsWithoutRecording(t *testing.T) {
	s := newSchema(t)
	session, root := s.open(t)
	accounts, err := s.accounts.Of(root)
	require.NoError(t, err)
	cm := session.Changes()

	outer := cm.StartRecording()
	kept, err := accounts.CreateNewElementWithValues(outer, s.account, []any{"Kept"})
	require.NoError(t, err)

	inner := cm.StartRecording()
	_, err = accounts.CreateNewElement(inner, s.account)
	require.NoError(t, err)
	require.NoError(t, s.name.Set(inner, kept, "Renamed"))
	require.Len(t, cm.Pending(), 3)

	require.NoError(t, cm.Rollback(inner))
	require.Len(t, cm.Pending(), 1)
	assert.Equal(t, 1, accounts.Size())
	name, err := s.name.Get(kept)
	require.NoError(t, err)
	assert.Equal(t, "Kept", name)

	_, err = cm.TakeUndoableChange(inner)
	require.NoError(t, err)
	change, err := cm.TakeUndoableChange(outer)
	require.NoError(t, err)
	assert.Equal(t, 1, change.Len())

	require.ErrorIs(t, cm.Rollback(outer), datamodel.ErrNotRecording)
}
