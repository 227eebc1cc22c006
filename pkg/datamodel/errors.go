package datamodel

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package wraps exactly one of
// them so callers can branch on the kind of failure with errors.Is.
var (
	// ErrSchema reports a problem with property set definitions. Schema errors
	// are detected at registration time and are fatal to plugin load.
	ErrSchema = errors.New("datamodel: schema error")
	// ErrState reports a call made in the wrong state (write without an edit,
	// undo without execute, access to a removed object).
	ErrState = errors.New("datamodel: state error")
	// ErrOperationFailed reports that the business logic of an operation failed.
	ErrOperationFailed = errors.New("datamodel: operation failed")
)

// Schema errors.
var (
	ErrDuplicateRegistration = fmt.Errorf("%w: property set already registered", ErrSchema)
	ErrDuplicateProperty     = fmt.Errorf("%w: duplicate property name", ErrSchema)
	ErrUnknownProperty       = fmt.Errorf("%w: unknown property", ErrSchema)
	ErrUnknownPropertySet    = fmt.Errorf("%w: unknown property set", ErrSchema)
	ErrNameCollision         = fmt.Errorf("%w: extension property name collision", ErrSchema)
	ErrUnregisteredBase      = fmt.Errorf("%w: base property set not registered", ErrSchema)
	ErrRegistryClosed        = fmt.Errorf("%w: registry closed", ErrSchema)
	ErrInvalidPropertySet    = fmt.Errorf("%w: invalid property set", ErrSchema)
	ErrIncompatibleType      = fmt.Errorf("%w: incompatible property set", ErrSchema)
	ErrInvalidValue          = fmt.Errorf("%w: invalid property value", ErrSchema)
)

// State errors.
var (
	ErrImmutableObject      = fmt.Errorf("%w: property set in non-mutable object", ErrState)
	ErrObjectDeleted        = fmt.Errorf("%w: object no longer exists", ErrState)
	ErrSessionClosed        = fmt.Errorf("%w: session closed", ErrState)
	ErrIllegalExecuteState  = fmt.Errorf("%w: operation already executed", ErrState)
	ErrIllegalUndoState     = fmt.Errorf("%w: undo without prior execute or redo", ErrState)
	ErrIllegalRedoState     = fmt.Errorf("%w: redo without prior undo", ErrState)
	ErrUnsupportedOperation = fmt.Errorf("%w: unsupported operation", ErrState)
	ErrReferenceViolation   = fmt.Errorf("%w: object still referenced", ErrState)
	ErrNotRecording         = fmt.Errorf("%w: no recording in progress", ErrState)
)

// OperationError is returned by DataOperation.Execute when the business logic
// of the wrapped operation fails.
type OperationError struct {
	Operation string
	Err       error
	// RolledBack reports whether the partial changes were reverted.
	RolledBack bool
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %q failed: %v", e.Operation, e.Err)
}

// Unwrap exposes both the category and the underlying cause.
func (e *OperationError) Unwrap() []error {
	return []error{ErrOperationFailed, e.Err}
}
