// Package showerr defines the error taxonomy shared by the scheduler and both control-plane adapters.
package showerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so remote clients can render a meaningful message.
type Kind string

const (
	// KindConfig reports a malformed show definition or playlist. Fatal to loading that entry only.
	KindConfig Kind = "ConfigError"
	// KindInvalidState reports a command that is illegal in the current playback state.
	KindInvalidState Kind = "InvalidState"
	// KindIndex reports an out-of-range playlist selection.
	KindIndex Kind = "IndexError"
	// KindEncoding reports a malformed or oversized transport payload.
	KindEncoding Kind = "EncodingError"
	// KindHardware reports a persistent strip output failure.
	KindHardware Kind = "HardwareError"
	// KindClock reports a playback clock fault.
	KindClock Kind = "ClockError"
)

// Error is a classified error with a human-readable detail.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// New creates a classified error.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. Returns nil when err is nil.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: KindIndex}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Detail == ""
}

// KindOf returns the kind of the first classified error in err's chain, or "" when unclassified.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
