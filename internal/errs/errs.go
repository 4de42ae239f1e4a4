// Package errs holds the error taxonomy shared by every device API domain.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure independently of the native service that caused it.
type Kind int

const (
	None Kind = iota
	InvalidArgument
	InvalidValues
	NotFound
	Platform
	WrongState
	Conversion
	OutOfRange
	NotSupported
	Unknown
)

var kindNames = []string{
	"None",
	"InvalidArgumentError",
	"InvalidValuesError",
	"NotFoundError",
	"PlatformError",
	"PlatformWrongStateError",
	"ConversionError",
	"OutOfRangeError",
	"NotSupportedError",
	"UnknownError",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Error is the user-visible error object produced at the API boundary.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Cause returns the native error this one was mapped from, if any.
func (e *Error) Cause() error { return e.cause }

func (e *Error) Unwrap() error { return e.cause }

// New returns an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to a native cause.
func Wrap(cause error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}

// KindOf reports the kind of err. Errors that were not produced by this
// package are Unknown; nil is None.
func KindOf(err error) Kind {
	if err == nil {
		return None
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
