// Package diag implements the core's two distinct error channels: Thrown,
// the in-language exception value that unwinds through try/catch/finally
// exactly like a thrown JS value, and Fatal, the host-level failure used
// for internal invariant violations (corrupt bytecode, an out-of-range
// register) that should never occur in a correctly compiled program and so
// are reported as Go errors rather than caught by script code.
//
// Errors carry an ErrorType-keyed message plus location plus call-stack
// triple, built around value.Value payloads (a thrown value can be
// *any* JS value, not just a string message) and pkg/errors for Fatal's
// Go-level wrapping/stack capture.
package diag

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"corevm/internal/value"
)

// StackFrame records one call-stack entry.
type StackFrame struct {
	Function string
	File     string
	Line     int
	Column   int
}

// Position is a source location.
type Position struct {
	File   string
	Line   int
	Column int
}

// Thrown wraps the value propagating through an in-flight exception. Per
// ECMAScript semantics this can be any value (`throw 42` is legal), not
// only an Error instance; NativeMessage/NativeErrorType are populated when
// the throw originated from a built-in runtime check (a TypeError for
// calling a non-callable, a ReferenceError for a TDZ violation) so
// diagnostics can render a message without unwrapping the Error object.
type Thrown struct {
	Value           value.Value
	NativeErrorType string
	NativeMessage   string
	At              Position
	Stack           []StackFrame
}

// Error implements the error interface so Thrown can travel through
// ordinary Go error-returning signatures inside the interpreter/compiler
// before being re-surfaced to script as a catch binding.
func (t *Thrown) Error() string {
	var sb strings.Builder
	if t.NativeErrorType != "" {
		fmt.Fprintf(&sb, "%s: %s\n", t.NativeErrorType, t.NativeMessage)
	} else {
		fmt.Fprintf(&sb, "Uncaught exception\n")
	}
	if t.At.File != "" {
		fmt.Fprintf(&sb, "  at %s:%d:%d\n", t.At.File, t.At.Line, t.At.Column)
	}
	for _, f := range t.Stack {
		if f.Function != "" {
			fmt.Fprintf(&sb, "  at %s (%s:%d:%d)\n", f.Function, f.File, f.Line, f.Column)
		} else {
			fmt.Fprintf(&sb, "  at %s:%d:%d\n", f.File, f.Line, f.Column)
		}
	}
	return sb.String()
}

// NewErrorValue, when set, builds the script-visible error object a native
// Thrown carries; the object package installs its constructor here from
// its init function (object/error.go) so diag itself never imports object.
var NewErrorValue func(kind, message string) value.Value

func nativeThrown(kind, message string, at Position) *Thrown {
	t := &Thrown{NativeErrorType: kind, NativeMessage: message, At: at}
	if NewErrorValue != nil {
		t.Value = NewErrorValue(kind, message)
	}
	return t
}

// NewTypeError, NewReferenceError, NewRangeError, NewSyntaxError construct
// the Thrown values the interpreter/compiler raise for built-in runtime
// checks (calling a non-callable, TDZ access, invalid array length, and
// so on).
func NewTypeError(message string, at Position) *Thrown      { return nativeThrown("TypeError", message, at) }
func NewReferenceError(message string, at Position) *Thrown { return nativeThrown("ReferenceError", message, at) }
func NewRangeError(message string, at Position) *Thrown      { return nativeThrown("RangeError", message, at) }
func NewSyntaxError(message string, at Position) *Thrown     { return nativeThrown("SyntaxError", message, at) }

// WithStack attaches a call stack to a Thrown and returns it, chainable at
// the unwind site.
func (t *Thrown) WithStack(stack []StackFrame) *Thrown {
	t.Stack = stack
	return t
}

// Fatal reports an internal invariant violation: corrupt bytecode, a
// register index out of range, a shape-table inconsistency. These never
// originate from script behavior and so are never catchable by a JS
// try/catch; they terminate the Engine.Run call with a Go error.
type Fatal struct {
	cause error
}

// NewFatal wraps msg (with formatting args) as a Fatal, capturing a stack
// trace via pkg/errors the way the rest of this dependency stack captures
// host-level failures.
func NewFatal(format string, args ...interface{}) *Fatal {
	return &Fatal{cause: errors.Errorf(format, args...)}
}

// WrapFatal wraps an existing Go error as a Fatal, preserving its chain.
func WrapFatal(err error, context string) *Fatal {
	return &Fatal{cause: errors.Wrap(err, context)}
}

// Error implements the error interface.
func (f *Fatal) Error() string { return f.cause.Error() }

// Unwrap supports errors.Is/errors.As over the wrapped cause.
func (f *Fatal) Unwrap() error { return f.cause }
