// Package domainerr realizes the closed failure-kind sum type used across
// the service so callers can branch on what went wrong without parsing
// error strings.
package domainerr

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of failure categories.
type Kind int

const (
	// InputInvalid marks a submission rejected before enqueue (bad grid,
	// tiles over limit, bad padding).
	InputInvalid Kind = iota
	// TransportTransient marks a remote fault that the retry driver may retry.
	TransportTransient
	// RemoteContract marks a violation of the remote service's documented
	// contract (quota exceeded, unexpected "set not found").
	RemoteContract
	// IO marks a local filesystem/storage fault.
	IO
	// Fatal marks a startup-aborting condition.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case InputInvalid:
		return "input_invalid"
	case TransportTransient:
		return "transport_transient"
	case RemoteContract:
		return "remote_contract"
	case IO:
		return "io"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and the operation it occurred in.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op with the given kind, wrapping err (which may be nil).
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err, or any error it wraps, carries the given Kind.
func Is(err error, kind Kind) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Kind == kind
}
