// Package skerr provides functions for creating and wrapping errors with
// call stack context, and for retrieving the original error from a wrapped
// one.
package skerr

import (
	"fmt"
	"runtime"
	"strings"
)

// callStackSize is the number of stack frames attached to errors created or
// wrapped by this package.
const callStackSize = 5

// StackTrace identifies a single line of a call stack.
type StackTrace struct {
	File string
	Line int
}

// String implements fmt.Stringer.
func (st StackTrace) String() string {
	return fmt.Sprintf("%s:%d", st.File, st.Line)
}

// CallStack returns a slice of StackTrace of at most the given height,
// starting skipped frames above the caller. The File fields are shortened to
// the last directory and file name.
func CallStack(height, skipped int) []StackTrace {
	stack := make([]StackTrace, 0, height)
	for i := 0; i < height; i++ {
		_, file, line, ok := runtime.Caller(skipped + i + 1)
		if !ok {
			break
		}
		if split := strings.Split(file, "/"); len(split) > 1 {
			file = split[len(split)-2] + "/" + split[len(split)-1]
		}
		stack = append(stack, StackTrace{File: file, Line: line})
	}
	return stack
}

// ErrorWithContext is an error with an optional message and the call stack of
// the code that created or handled it.
type ErrorWithContext struct {
	// Wrapped is the original error.
	Wrapped error
	// CallStack is the stack at the point Wrap/Wrapf/Fmt was called;
	// CallStack[0] is the immediate caller.
	CallStack []StackTrace
	// Message is an additional message giving context for Wrapped.
	Message string
}

// Error implements the error interface.
func (err *ErrorWithContext) Error() string {
	var sb strings.Builder
	if err.Message != "" {
		sb.WriteString(err.Message)
	}
	if err.Wrapped != nil {
		if err.Message != "" {
			sb.WriteString(": ")
		}
		sb.WriteString(err.Wrapped.Error())
	}
	if len(err.CallStack) > 0 {
		sb.WriteString(" At")
		for _, st := range err.CallStack {
			sb.WriteString(" ")
			sb.WriteString(st.String())
		}
	}
	return sb.String()
}

// Unwrap supports errors.Is and errors.As.
func (err *ErrorWithContext) Unwrap() error {
	return err.Wrapped
}

// Fmt creates an error with a formatted message and a call stack.
func Fmt(format string, args ...interface{}) error {
	return &ErrorWithContext{
		Wrapped:   fmt.Errorf(format, args...),
		CallStack: CallStack(callStackSize, 1),
	}
}

// Wrap adds a call stack to err. Returns nil if err is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(callStackSize, 1),
	}
}

// Wrapf adds a call stack and a formatted message to err. Returns nil if err
// is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(callStackSize, 1),
		Message:   fmt.Sprintf(format, args...),
	}
}

// Unwrap returns the innermost error if err is one or more ErrorWithContext
// wrappings of it; otherwise returns err unchanged.
func Unwrap(err error) error {
	for {
		ewc, ok := err.(*ErrorWithContext)
		if !ok {
			return err
		}
		err = ewc.Wrapped
	}
}
