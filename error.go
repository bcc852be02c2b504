package localstore

import "fmt"

// ErrorCode enumerates LocalStore error categories.
type ErrorCode int

const (
	// Unknown represents an unspecified error condition.
	Unknown ErrorCode = iota
	// PreconditionViolation marks acknowledging/rejecting a non-head batch, or
	// releasing a query that was never allocated.
	PreconditionViolation
	// Persistence marks a backend I/O failure; fatal to the enclosing operation,
	// its transaction must be rolled back.
	Persistence
	// DataCorruption marks an invariant breach detected on read; fatal, surfaced
	// to the caller.
	DataCorruption
)

// Error is a LocalStore-specific error carrying a code, the wrapped error and
// optional user data (e.g. the offending batch ID or key).
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

// Error implements the error interface by formatting the code, user data, and wrapped error details.
func (e Error) Error() string {
	return fmt.Errorf("error code: %d, user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// NewError builds a LocalStore Error with the given code, wrapped error and user data.
func NewError(code ErrorCode, err error, userData any) error {
	return Error{Code: code, Err: err, UserData: userData}
}
