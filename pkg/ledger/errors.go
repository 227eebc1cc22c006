package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransaction reports a transaction that fails validation
	// before any mutation happens.
	ErrInvalidTransaction = errors.New("ledger: invalid transaction")
	// ErrInvalidAccount reports an account argument of the wrong kind or a
	// bad account attribute.
	ErrInvalidAccount = errors.New("ledger: invalid account")
	// ErrDuplicateCurrency reports a currency code that is already in use.
	ErrDuplicateCurrency = errors.New("ledger: duplicate currency")
	// ErrNotFound reports a lookup that matched nothing.
	ErrNotFound = errors.New("ledger: not found")
)

// ErrUnbalanced reports a transfer whose entries do not sum to zero.
var ErrUnbalanced = fmt.Errorf("%w: entries do not balance", ErrInvalidTransaction)
