// Package skerr adds call-site stack context to errors without losing
// Go's native error wrapping chain. It mirrors the shape of the teacher
// corpus's own skerr package: every error that crosses a component
// boundary picks up one more stack frame, and errors.Is/errors.As keep
// working all the way down to the original cause.
package skerr

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// StackTrace identifies one call-site frame recorded by Wrap.
type StackTrace struct {
	File string
	Line int
}

func (s StackTrace) String() string {
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}

type stackError struct {
	cause  error
	frames []StackTrace
}

func (e *stackError) Error() string {
	parts := make([]string, len(e.frames))
	for i, f := range e.frames {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%s. At %s", e.cause.Error(), strings.Join(parts, " "))
}

func (e *stackError) Unwrap() error {
	return e.cause
}

func frameAt(skip int) StackTrace {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return StackTrace{File: "unknown", Line: 0}
	}
	return StackTrace{File: filepath.Base(file), Line: line}
}

// CallStack returns up to n frames, innermost first, starting at
// runtime.Caller(skip) (skip 0 is CallStack itself). With n <= 0 it
// returns every frame, capped at 66; intended for diagnostics.
func CallStack(skip, n int) []StackTrace {
	out := []StackTrace{}
	for i := skip; n <= 0 || len(out) < n; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		out = append(out, StackTrace{File: filepath.Base(file), Line: line})
		if n <= 0 && i > skip+64 {
			break
		}
	}
	return out
}

// Wrap records the caller's file:line against err, preserving any frames
// already recorded by an earlier Wrap call further down the stack. Returns
// nil if err is nil, so it is safe to use as `return skerr.Wrap(err)`.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	frame := frameAt(2)
	var se *stackError
	if errors.As(err, &se) {
		se.frames = append(se.frames, frame)
		return se
	}
	return &stackError{cause: err, frames: []StackTrace{frame}}
}

// Wrapf formats a message, attaches it to err with %w, and records a
// stack frame in one call.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	frame := frameAt(2)
	var se *stackError
	if errors.As(err, &se) {
		return &stackError{cause: wrapped, frames: append(append([]StackTrace{}, se.frames...), frame)}
	}
	return &stackError{cause: wrapped, frames: []StackTrace{frame}}
}

// Fmt builds a new error from a format string and immediately records a
// stack frame, the way callers previously reached for fmt.Errorf.
func Fmt(format string, args ...interface{}) error {
	frame := frameAt(2)
	return &stackError{cause: fmt.Errorf(format, args...), frames: []StackTrace{frame}}
}

// Unwrap strips all skerr-recorded stack context and returns the
// original cause, for tests and callers that only care about identity.
func Unwrap(err error) error {
	var se *stackError
	if errors.As(err, &se) {
		return se.cause
	}
	return err
}
