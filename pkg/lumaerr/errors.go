// Package lumaerr implements the closed error taxonomy every Luma component
// returns upward: ten kinds, a structured error type, and the Is/Unwrap pair
// needed for callers to branch on kind without string matching.
package lumaerr

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of error categories. New values must not be
// added without updating every adapter's translation table.
type Kind int

const (
	// Internal marks an invariant violation with no assigned kind.
	Internal Kind = iota
	NotFound
	AlreadyExists
	InvalidRequest
	WrongType
	Busy
	Conflict
	Corruption
	IoFailed
	ResourceExhausted
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case InvalidRequest:
		return "invalid_request"
	case WrongType:
		return "wrong_type"
	case Busy:
		return "busy"
	case Conflict:
		return "conflict"
	case Corruption:
		return "corruption"
	case IoFailed:
		return "io_failed"
	case ResourceExhausted:
		return "resource_exhausted"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the structured error every Luma component returns. Op names the
// operation that failed ("lsm.Put", "sstable.Get"); Kind is the taxonomy
// bucket; Err is the wrapped cause, which may be nil for a bare kind.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, or delegates to
// the wrapped error otherwise.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return errors.Is(e.Err, target)
}

// New builds an *Error with no wrapped cause.
func New(op string, kind Kind) *Error {
	return &Error{Op: op, Kind: kind}
}

// Wrap builds an *Error that carries err as its cause, with the op and kind
// given here, or returns nil when err is nil. If err is itself a *Error it
// stays reachable through Unwrap, but KindOf reports the kind given here.
func Wrap(op string, kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind of err, defaulting to Internal when err is not
// (or does not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err is, or wraps, a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
