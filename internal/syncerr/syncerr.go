// Package syncerr classifies failures at the bridge's boundaries so callers
// can tell a condition the next cycle will retry from one it never will.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an Error.
type Kind int

const (
	// Unknown is returned by KindOf for errors that were never classified.
	Unknown Kind = iota
	// Auth is a missing or mismatched credential at the webhook boundary.
	Auth
	// Validation is a malformed request or payload.
	Validation
	// Remote is a timeout, transport failure, or non-success reply from
	// osTicket or Kanboard.
	Remote
	// LookupMiss is a missing routing rule, column, or identity that has no
	// safe default.
	LookupMiss
)

func (k Kind) String() string {
	switch k {
	case Auth:
		return "auth"
	case Validation:
		return "validation"
	case Remote:
		return "remote"
	case LookupMiss:
		return "lookup_miss"
	}
	return "unknown"
}

// Error is a classified failure. Op names the operation that failed,
// e.g. "kanboard.moveTaskToColumn".
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error of the given kind.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Remotef returns a Remote error with a formatted cause.
func Remotef(op, format string, args ...any) error {
	return &Error{Kind: Remote, Op: op, Err: fmt.Errorf(format, args...)}
}

// LookupMissf returns a LookupMiss error with a formatted cause.
func LookupMissf(op, format string, args ...any) error {
	return &Error{Kind: LookupMiss, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether re-deriving the same transition on the next
// scheduled cycle may succeed. Auth and Validation failures never will.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case Auth, Validation:
		return false
	}
	return err != nil
}
