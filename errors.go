package vaultkv

import "github.com/pkg/errors"

// ErrKind classifies a vaultkv.Error.
type ErrKind int

const (
	// IOError wraps a failure surfaced by the underlying storage.Storage
	// implementation.
	IOError ErrKind = iota
	// InvalidDatabase reports a structural problem with the blob set found
	// at open (an unexpected name, a missing WAL, a malformed SSTable name,
	// an empty or non-ASCII SSTable name in a WAL record, or an unknown WAL
	// record tag). It is also returned by operations on a closed Database.
	InvalidDatabase
)

func (k ErrKind) String() string {
	switch k {
	case IOError:
		return "io error"
	case InvalidDatabase:
		return "invalid database"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by every Database operation that can
// fail for a reason more specific than "wraps whatever storage returned."
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

// Unwrap exposes the wrapped cause, matching the original Error enum's
// source() behavior.
func (e *Error) Unwrap() error {
	return e.Err
}

func ioError(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: IOError, Err: err}
}

func invalidDatabase(format string, args ...interface{}) error {
	return &Error{Kind: InvalidDatabase, Err: errors.Errorf(format, args...)}
}
