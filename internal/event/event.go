// Package event carries request parameters to a handler and the handler's
// outcome back to the caller on the same object.
//
// Every optional field is a Field with its own is-set flag. A handler that
// succeeds sets the result together with its output fields; callers check
// both before trusting an output.
package event

import (
	"github.com/Dicklesworthstone/wrt_device_api/internal/errs"
)

// Field is an optional request/response value.
type Field[T any] struct {
	v   T
	set bool
}

func (f *Field[T]) Set(v T) {
	f.v = v
	f.set = true
}

func (f *Field[T]) Get() T { return f.v }

func (f *Field[T]) IsSet() bool { return f.set }

func (f *Field[T]) Clear() {
	var zero T
	f.v = zero
	f.set = false
}

// Base is embedded in every request type.
type Base struct {
	result    bool
	exception errs.Kind
	message   string
	err       error
}

func (b *Base) SetResult(ok bool) { b.result = ok }

func (b *Base) Result() bool { return b.result }

// SetException records a failure and clears the result.
func (b *Base) SetException(kind errs.Kind, message string) {
	b.result = false
	b.exception = kind
	b.message = message
	b.err = nil
}

// Fail records err, keeping its kind when it already carries one.
func (b *Base) Fail(err error) {
	b.SetException(errs.KindOf(err), err.Error())
	b.err = err
}

func (b *Base) Exception() errs.Kind { return b.exception }

// Err converts the outcome into an error. A request nobody handled reports
// Unknown.
func (b *Base) Err() error {
	if b.err != nil {
		return b.err
	}
	if b.exception != errs.None {
		return errs.New(b.exception, "%s", b.message)
	}
	if !b.result {
		return errs.New(errs.Unknown, "request was not handled")
	}
	return nil
}

func (b *Base) Outcome() *Base { return b }

// Request is implemented by every type embedding Base.
type Request interface {
	Outcome() *Base
}

// Receiver processes requests.
type Receiver interface {
	Handle(req Request)
}

// Dispatch hands req to r synchronously and returns its outcome.
func Dispatch(r Receiver, req Request) error {
	r.Handle(req)
	return req.Outcome().Err()
}

// Expect returns the output of a successful request, failing when the handler
// reported success but never set the field.
func Expect[T any](req Request, f *Field[T]) (T, error) {
	var zero T
	if err := req.Outcome().Err(); err != nil {
		return zero, err
	}
	if !f.IsSet() {
		return zero, errs.New(errs.Unknown, "handler returned success without a value")
	}
	return f.Get(), nil
}
