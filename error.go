package jsbridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// Status classifies a failure. It is exposed to JavaScript as the `code`
// property of thrown errors.
type Status string

const (
	InvalidArg       Status = "InvalidArg"
	ObjectExpected   Status = "ObjectExpected"
	StringExpected   Status = "StringExpected"
	NumberExpected   Status = "NumberExpected"
	BooleanExpected  Status = "BooleanExpected"
	ArrayExpected    Status = "ArrayExpected"
	FunctionExpected Status = "FunctionExpected"
	GenericFailure   Status = "GenericFailure"
	PendingException Status = "PendingException"
	Cancelled        Status = "Cancelled"
	Closing          Status = "Closing"
)

// AbortMessage is the message of the rejection produced by an aborted task.
const AbortMessage = "AbortError"

// Error is the failure type crossing the boundary in both directions.
type Error struct {
	Status  Status // Failure class, PendingException for values thrown by JavaScript without a code
	Name    string // Error name (e.g., "TypeError"), empty for plain native failures
	Message string // Error message
	Cause   error  // Underlying cause
	Stack   string // JavaScript stack trace, when the failure came from the engine

	// host is the original thrown value when the failure came from JavaScript.
	host goja.Value
}

// NewError creates a failure with the given status and message.
func NewError(status Status, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Errorf creates a failure with the given status and a formatted message.
func Errorf(status Status, format string, args ...interface{}) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (err *Error) Error() string {
	if err.Name == "" {
		return err.Message
	}
	return fmt.Sprintf("%s: %s", err.Name, err.Message)
}

// Unwrap returns the cause.
func (err *Error) Unwrap() error {
	return err.Cause
}

// HostValue returns the JavaScript value this failure was created from, if any.
func (err *Error) HostValue() goja.Value {
	return err.host
}

// TypeMismatch reports a value whose shape does not match the declared one.
type TypeMismatch struct {
	Expected string
	Actual   string
}

func (err *TypeMismatch) Error() string {
	return fmt.Sprintf("Expect value to be %s, but received %s", err.Expected, err.Actual)
}

var expectedStatus = map[string]Status{
	"Object":   ObjectExpected,
	"String":   StringExpected,
	"Number":   NumberExpected,
	"Boolean":  BooleanExpected,
	"Array":    ArrayExpected,
	"Function": FunctionExpected,
}

// Status returns the status for the expected kind. Kinds without a
// dedicated status, such as classes and unions, report InvalidArg.
func (err *TypeMismatch) Status() Status {
	if status, ok := expectedStatus[err.Expected]; ok {
		return status
	}
	return InvalidArg
}

func abortError() *Error {
	return &Error{Status: Cancelled, Message: AbortMessage, Cause: context.Canceled}
}

// IsAbort reports whether err is the rejection of an aborted task.
func IsAbort(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == Cancelled && e.Message == AbortMessage
}

// AsError converts any error into the boundary failure type.
// Type mismatches become TypeError failures carrying the mismatch status,
// context.Canceled becomes the abort failure and every other error becomes
// a GenericFailure.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var tm *TypeMismatch
	if errors.As(err, &tm) {
		return &Error{Status: tm.Status(), Name: "TypeError", Message: tm.Error(), Cause: err}
	}

	if errors.Is(err, context.Canceled) {
		return abortError()
	}

	return &Error{Status: GenericFailure, Message: err.Error(), Cause: err}
}

var hostErrorConstructors = map[string]bool{
	"Error":          true,
	"TypeError":      true,
	"RangeError":     true,
	"SyntaxError":    true,
	"ReferenceError": true,
}

// ToHostException converts a native failure into the value thrown into the
// engine. Failures that originated in JavaScript re-throw the original value.
func (r *Runtime) ToHostException(err error) goja.Value {
	f := AsError(err)
	if f == nil {
		return goja.Undefined()
	}
	if f.host != nil {
		return f.host
	}

	ctorName := "Error"
	if hostErrorConstructors[f.Name] {
		ctorName = f.Name
	}

	obj, e := r.vm.New(r.vm.Get(ctorName), r.vm.ToValue(f.Message))
	if e != nil {
		return r.vm.NewGoError(err)
	}
	if f.Name != "" && f.Name != ctorName {
		_ = obj.Set("name", f.Name)
	}
	if f.Status != "" {
		_ = obj.Set("code", string(f.Status))
	}
	var cause *Error
	if errors.As(f.Cause, &cause) {
		_ = obj.Set("cause", r.ToHostException(cause))
	}
	return obj
}

// throw raises err as a JavaScript exception. It must only be called from
// code invoked by the engine.
func (r *Runtime) throw(err error) {
	panic(r.ToHostException(err))
}

// ToNativeFailure converts a thrown JavaScript value into a native failure.
func (r *Runtime) ToNativeFailure(v goja.Value) *Error {
	return r.toNativeFailure(v, 0)
}

func (r *Runtime) toNativeFailure(v goja.Value, depth int) *Error {
	f := &Error{Status: PendingException, host: v}
	if v == nil {
		f.host = nil
		f.Message = "undefined"
		return f
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		f.Message = v.String()
		return f
	}

	f.Name = stringProp(obj, "name")
	f.Message = stringProp(obj, "message")
	f.Stack = stringProp(obj, "stack")
	if code := stringProp(obj, "code"); code != "" {
		f.Status = Status(code)
	}
	if f.Name == "" && f.Message == "" {
		f.Message = obj.String()
	}
	if cause := obj.Get("cause"); isPresent(cause) && depth < 8 {
		f.Cause = r.toNativeFailure(cause, depth+1)
	}
	return f
}

// failureFromError converts an error returned by the engine into a native failure.
func (r *Runtime) failureFromError(err error) *Error {
	if err == nil {
		return nil
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		f := r.ToNativeFailure(ex.Value())
		if f.Stack == "" {
			f.Stack = ex.String()
		}
		return f
	}

	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		return &Error{Status: Cancelled, Name: "InterruptedError", Message: ie.Error(), Cause: err}
	}

	return AsError(err)
}

func stringProp(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if !isPresent(v) {
		return ""
	}
	return v.String()
}

func isPresent(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}
