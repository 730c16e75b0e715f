package contract

import "errors"

// Registry error taxonomy. Every failure surfaced to a caller wraps one
// of these sentinels so clients and tests can match with errors.Is while
// still getting a descriptive message.
var (
	ErrDuplicateID    = errors.New("duplicate id")
	ErrNotFound       = errors.New("not found")
	ErrInactiveRecord = errors.New("record is inactive")
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrPaused         = errors.New("registry is paused")
	ErrOutOfRange     = errors.New("offset out of range")
)
