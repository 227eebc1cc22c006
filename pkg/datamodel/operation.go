package datamodel

import (
	"context"
	"fmt"
)

// Operation is a unit of business logic. Execute performs all of its
// mutations through edit.
type Operation interface {
	Name() string
	Execute(ctx context.Context, edit *Edit) error
}

type funcOperation struct {
	name string
	fn   func(ctx context.Context, edit *Edit) error
}

func (o funcOperation) Name() string { return o.name }

func (o funcOperation) Execute(ctx context.Context, edit *Edit) error { return o.fn(ctx, edit) }

// NewOperation adapts a function to Operation.
func NewOperation(name string, fn func(ctx context.Context, edit *Edit) error) Operation {
	return funcOperation{name: name, fn: fn}
}

// OperationState is the lifecycle position of a DataOperation.
type OperationState int

const (
	StateUnexecuted OperationState = iota
	StateExecuted
	StateUndone
)

func (s OperationState) String() string {
	switch s {
	case StateUnexecuted:
		return "unexecuted"
	case StateExecuted:
		return "executed"
	case StateUndone:
		return "undone"
	}
	return fmt.Sprintf("OperationState(%d)", int(s))
}

// DataOperation wraps an Operation with change capture so it can be undone
// and redone. Its lifecycle is Unexecuted, then Executed and Undone in turn.
type DataOperation struct {
	session *Session
	op      Operation
	state   OperationState
	merged  bool
	redo    *UndoableChange
	undo    *UndoableChange
}

// NewDataOperation prepares op for execution against session.
func NewDataOperation(session *Session, op Operation) *DataOperation {
	return &DataOperation{session: session, op: op}
}

// Name returns the name of the wrapped operation.
func (d *DataOperation) Name() string { return d.op.Name() }

// State returns the lifecycle position.
func (d *DataOperation) State() OperationState { return d.state }

// Merged reports whether the operation ran inside another recording. Its
// changes then belong to the enclosing change set and it cannot be undone on
// its own.
func (d *DataOperation) Merged() bool { return d.merged }

// RedoChanges returns the change set that Undo reverses. It is nil unless
// the operation is executed.
func (d *DataOperation) RedoChanges() *UndoableChange { return d.redo }

// UndoChanges returns the change set that Redo reverses. It is nil unless
// the operation is undone.
func (d *DataOperation) UndoChanges() *UndoableChange { return d.undo }

// Execute runs the operation and captures its changes. When the operation
// fails its partial changes are rolled back and an *OperationError is
// returned; the operation stays unexecuted.
func (d *DataOperation) Execute(ctx context.Context) error {
	if d.state != StateUnexecuted {
		return fmt.Errorf("%w: %s", ErrIllegalExecuteState, d.Name())
	}
	if err := d.session.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := d.session.changes
	edit := m.StartRecording()
	err := d.op.Execute(ctx, edit)
	if !edit.open {
		if err == nil {
			err = fmt.Errorf("%w: %s closed its own edit", ErrNotRecording, d.Name())
		}
		return &OperationError{Operation: d.Name(), Err: err}
	}
	m.closeInner(edit)
	if err != nil {
		return d.abort(edit, &OperationError{Operation: d.Name(), Err: err})
	}
	change, err := m.TakeUndoableChange(edit)
	if err != nil {
		return err
	}
	d.redo = change
	d.merged = change == nil
	d.state = StateExecuted
	return nil
}

// Undo reverses an executed operation.
func (d *DataOperation) Undo(ctx context.Context) error {
	if d.state != StateExecuted || d.redo == nil {
		return fmt.Errorf("%w: %s is %s", ErrIllegalUndoState, d.Name(), d.describe())
	}
	change, err := d.replay(ctx, d.redo)
	if err != nil {
		return err
	}
	d.undo = change
	d.redo = nil
	d.state = StateUndone
	return nil
}

// Redo reapplies an undone operation.
func (d *DataOperation) Redo(ctx context.Context) error {
	if d.state != StateUndone || d.undo == nil {
		return fmt.Errorf("%w: %s is %s", ErrIllegalRedoState, d.Name(), d.describe())
	}
	change, err := d.replay(ctx, d.undo)
	if err != nil {
		return err
	}
	d.redo = change
	d.undo = nil
	d.state = StateExecuted
	return nil
}

// abort rolls back and closes edit after a failure, folding any cleanup
// error into opErr.
func (d *DataOperation) abort(edit *Edit, opErr *OperationError) error {
	m := d.session.changes
	if rbErr := m.Rollback(edit); rbErr != nil {
		opErr.Err = fmt.Errorf("%w (rollback failed: %v)", opErr.Err, rbErr)
	} else {
		opErr.RolledBack = true
	}
	m.closeInner(edit)
	if _, err := m.TakeUndoableChange(edit); err != nil {
		opErr.Err = fmt.Errorf("%w (close edit: %v)", opErr.Err, err)
	}
	return opErr
}

func (d *DataOperation) describe() string {
	if d.merged {
		return "merged into an enclosing operation"
	}
	return d.state.String()
}

// replay applies the inverse of change inside a fresh outermost recording
// and returns what that recording captured.
func (d *DataOperation) replay(ctx context.Context, change *UndoableChange) (*UndoableChange, error) {
	if err := d.session.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := d.session.changes
	if m.Recording() {
		return nil, fmt.Errorf("%w: a recording is in progress", ErrState)
	}
	edit := m.StartRecording()
	err := change.UndoChanges(edit)
	if !edit.open {
		if err == nil {
			err = fmt.Errorf("%w: a listener closed the replay edit", ErrNotRecording)
		}
		return nil, err
	}
	m.closeInner(edit)
	if err != nil {
		if rbErr := m.Rollback(edit); rbErr != nil {
			err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		m.closeInner(edit)
		if _, closeErr := m.TakeUndoableChange(edit); closeErr != nil {
			err = fmt.Errorf("%w (close edit: %v)", err, closeErr)
		}
		return nil, err
	}
	return m.TakeUndoableChange(edit)
}
