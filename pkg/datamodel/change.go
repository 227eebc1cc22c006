package datamodel

import (
	"fmt"
	"slices"
)

// Action enumerates the kinds of change records.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change is one recorded mutation. Which fields are set depends on Action:
// updates carry Accessor, Before and After; creations and deletions carry
// List, Index and the State of the subtree.
type Change struct {
	Action   Action
	Object   ObjectKey
	Accessor *ScalarAccessor
	Before   any
	After    any
	List     ListKey
	Index    int
	State    ObjectState
}

func (c Change) String() string {
	switch c.Action {
	case ActionUpdate:
		return fmt.Sprintf("update %s.%s: %v -> %v", c.Object, c.Accessor.QualifiedName(), c.Before, c.After)
	default:
		return fmt.Sprintf("%s %s in %s at %d", c.Action, c.Object, c.List, c.Index)
	}
}

// ChangeManager records the mutations of a session. Recording starts with
// StartRecording and ends with TakeUndoableChange. Recordings nest: starting
// while one is open yields a nested edit sharing the same log, and only the
// outermost edit produces an UndoableChange.
type ChangeManager struct {
	session *Session
	current *Edit
	log     []Change
	paused  bool
}

// Edit is the capability to mutate a session. It is obtained from
// StartRecording and is valid until passed to TakeUndoableChange.
type Edit struct {
	manager *ChangeManager
	parent  *Edit
	mark    int
	open    bool
}

// Nested reports whether the edit was opened inside another recording.
func (e *Edit) Nested() bool { return e.parent != nil }

// Open reports whether the edit still allows mutation.
func (e *Edit) Open() bool { return e != nil && e.open }

// Session returns the session the edit mutates.
func (e *Edit) Session() *Session { return e.manager.session }

// Recording reports whether an edit is open.
func (m *ChangeManager) Recording() bool { return m.current != nil }

// StartRecording opens an edit.
func (m *ChangeManager) StartRecording() *Edit {
	e := &Edit{manager: m, parent: m.current, mark: len(m.log), open: true}
	m.current = e
	return e
}

// TakeUndoableChange closes edit. For the outermost edit it returns the
// captured change set and resets the log; nested edits return nil.
func (m *ChangeManager) TakeUndoableChange(edit *Edit) (*UndoableChange, error) {
	if edit == nil || edit.manager != m || !edit.open {
		return nil, ErrNotRecording
	}
	if edit != m.current {
		return nil, fmt.Errorf("%w: an inner edit is still open", ErrNotRecording)
	}
	edit.open = false
	m.current = edit.parent
	if edit.parent != nil {
		return nil, nil
	}
	uc := &UndoableChange{manager: m, changes: m.log}
	m.log = nil
	return uc, nil
}

// closeInner closes the edits still open inside edit and makes edit the
// current recording again. Their changes stay in the shared log. edit must
// be open.
func (m *ChangeManager) closeInner(edit *Edit) {
	for m.current != nil && m.current != edit {
		m.current.open = false
		m.current = m.current.parent
	}
}

// Rollback reverts every change recorded since edit was opened, without
// recording the reversal, and truncates the log to that point. The edit
// stays open.
func (m *ChangeManager) Rollback(edit *Edit) error {
	if edit == nil || edit.manager != m || !edit.open {
		return ErrNotRecording
	}
	pending := slices.Clone(m.log[edit.mark:])
	m.paused = true
	defer func() { m.paused = false }()
	for i := len(pending) - 1; i >= 0; i-- {
		if err := m.invert(edit, pending[i]); err != nil {
			return fmt.Errorf("rollback %s: %w", pending[i], err)
		}
	}
	m.log = m.log[:edit.mark]
	return nil
}

// Pending returns the changes recorded so far by the open recording.
func (m *ChangeManager) Pending() []Change { return slices.Clone(m.log) }

func (m *ChangeManager) record(c Change) {
	if m.paused || m.current == nil {
		return
	}
	m.log = append(m.log, c)
}

// invert applies the inverse of c under edit.
func (m *ChangeManager) invert(edit *Edit, c Change) error {
	s := m.session
	switch c.Action {
	case ActionUpdate:
		obj, err := s.Object(c.Object)
		if err != nil {
			return err
		}
		return obj.Set(edit, c.Accessor, c.Before)
	case ActionCreate:
		removed, err := s.removeElement(edit, c.List, c.Object)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: %s is not in %s", ErrObjectDeleted, c.Object, c.List)
		}
		return nil
	case ActionDelete:
		return s.restoreElement(edit, c.List, c.State, c.Index)
	}
	return fmt.Errorf("%w: unknown action %q", ErrUnsupportedOperation, c.Action)
}

// UndoableChange is the immutable change set captured by one outermost
// recording.
type UndoableChange struct {
	manager *ChangeManager
	changes []Change
}

// Changes returns the recorded changes in the order they happened.
func (u *UndoableChange) Changes() []Change { return slices.Clone(u.changes) }

// Len returns the number of recorded changes.
func (u *UndoableChange) Len() int { return len(u.changes) }

// Empty reports whether nothing was recorded.
func (u *UndoableChange) Empty() bool { return len(u.changes) == 0 }

// UndoChanges applies the inverse of every change, newest first, under edit.
// The reversal is itself recorded by edit, so taking the edit afterwards
// yields the change set that redoes the original.
func (u *UndoableChange) UndoChanges(edit *Edit) error {
	if edit == nil || edit.manager != u.manager || !edit.open {
		return ErrImmutableObject
	}
	for i := len(u.changes) - 1; i >= 0; i-- {
		if err := u.manager.invert(edit, u.changes[i]); err != nil {
			return fmt.Errorf("undo %s: %w", u.changes[i], err)
		}
	}
	return nil
}
