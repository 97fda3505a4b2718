// Package errs defines the operational error taxonomy shared by every layer
// of the agent runtime, from the repository up through the HTTP and
// WebSocket control surfaces.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of status-code mapping and
// client-facing reporting. Every Kind carries a stable string Code.
type Kind int

const (
	Unhandled Kind = iota
	Validation
	NotFound
	Conflict
	ProcessError
	StorageError
	TransportError
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not-found"
	case Conflict:
		return "conflict"
	case ProcessError:
		return "process-error"
	case StorageError:
		return "storage-error"
	case TransportError:
		return "transport-error"
	default:
		return "unhandled"
	}
}

// Code returns the stable machine-readable code surfaced in API responses.
func (k Kind) Code() string {
	switch k {
	case Validation:
		return "VALIDATION_ERROR"
	case NotFound:
		return "NOT_FOUND"
	case Conflict:
		return "CONFLICT"
	case ProcessError:
		return "PROCESS_ERROR"
	case StorageError:
		return "STORAGE_ERROR"
	case TransportError:
		return "TRANSPORT_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is the single error type operational code should construct and
// propagate. It wraps an optional cause so errors.Is/errors.As keep working
// across layers.
type Error struct {
	Kind    Kind
	Message string
	Details any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error    { return newf(NotFound, format, args...) }
func Conflictf(format string, args ...any) *Error    { return newf(Conflict, format, args...) }
func Validationf(format string, args ...any) *Error  { return newf(Validation, format, args...) }
func ProcessErrorf(format string, args ...any) *Error { return newf(ProcessError, format, args...) }
func TransportErrorf(format string, args ...any) *Error {
	return newf(TransportError, format, args...)
}

// Storage wraps a lower-level storage failure (driver error, constraint
// violation already classified by the caller) as a StorageError.
func Storage(cause error, format string, args ...any) *Error {
	return &Error{Kind: StorageError, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WrapConflict wraps a lower-level cause (e.g. a UNIQUE/FOREIGN KEY constraint
// violation) as a Conflict, preserving the cause for errors.Is/errors.As.
func WrapConflict(cause error, format string, args ...any) *Error {
	return &Error{Kind: Conflict, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to Unhandled for anything else. This replaces string-sniffing error
// messages with a typed check.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unhandled
}

// Is reports whether err is (or wraps) an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
