package bus

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/hal/platform"
)

// Kind classifies every error a bus operation can return. The zero Kind is not an error.
type Kind int

// The error kinds.
const (
	InvalidArgument Kind = iota + 1
	NotInitialized
	NotConfigured
	Busy
	Timeout
	Unsupported
	OutOfMemory
	NotFound
	AlreadyStarted
	NotStarted
	Other
)

var kindNames = [...]string{
	InvalidArgument: "invalid argument",
	NotInitialized:  "not initialized",
	NotConfigured:   "not configured",
	Busy:            "busy",
	Timeout:         "timeout",
	Unsupported:     "unsupported",
	OutOfMemory:     "out of memory",
	NotFound:        "not found",
	AlreadyStarted:  "already started",
	NotStarted:      "not started",
	Other:           "other",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error makes a bare Kind usable as a sentinel with errors.Is.
func (k Kind) Error() string {
	return k.String()
}

// Error is the error type returned by every bus operation.
type Error struct {
	Kind Kind
	// Op names the operation, for example "i2c write".
	Op string
	// Err is the underlying platform error, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the platform cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// NewError returns an error of the given kind for op.
func NewError(op string, kind Kind) error {
	return &Error{Kind: kind, Op: op}
}

// Errorf returns an error of the given kind for op with a formatted cause.
func Errorf(op string, kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// KindOf returns the Kind of err. Nil has the zero Kind and errors that did not come from this
// package are Other.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Other
}

// Map translates a platform result into a bus error for op. It is the only place platform errors
// are interpreted; nil maps to nil.
func Map(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			return &Error{Kind: e.Kind, Op: op, Err: e.Err}
		}
		return err
	}
	return &Error{Kind: classify(err), Op: op, Err: err}
}

func classify(err error) Kind {
	var k Kind
	if errors.As(err, &k) {
		return k
	}

	var status platform.Status
	if errors.As(err, &status) {
		return statusKind(status)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Timeout
	}

	if kind, ok := errnoKind(err); ok {
		return kind
	}
	return Other
}

func statusKind(status platform.Status) Kind {
	switch status {
	case platform.StatusTimeout:
		return Timeout
	case platform.StatusInvalidArg:
		return InvalidArgument
	case platform.StatusInvalidState:
		return Busy
	case platform.StatusNotSupported:
		return Unsupported
	case platform.StatusNoMem:
		return OutOfMemory
	case platform.StatusNotFound:
		return NotFound
	case platform.StatusOK, platform.StatusFail:
		return Other
	default:
		return Other
	}
}
