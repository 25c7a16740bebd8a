// Package ostreeerr defines the error kinds the daemon returns to callers (§7).
package ostreeerr

import "fmt"

// Kind names one of the daemon's well-known error categories. Callers use it
// instead of string-matching the message.
type Kind string

const (
	Failed            Kind = "Failed"
	InvalidSysroot    Kind = "InvalidSysroot"
	NotAuthorized     Kind = "NotAuthorized"
	Busy              Kind = "Busy"
	InvalidRefspec    Kind = "InvalidRefspec"
	MissingRefspec    Kind = "MissingRefspec"
	MissingDeployment Kind = "MissingDeployment"
	NotFound          Kind = "NotFound"
	Cancelled         Kind = "Cancelled"
)

// Error is a structured error carrying a Kind plus a human-readable message,
// with optional wrapping of the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind whose message is the cause's
// message, preserving the cause for errors.Is/As.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: cause.Error(), cause: cause}
}

// Wrapf builds an Error of the given kind with a formatted message that
// wraps cause via %w, preserving both the message and the chain.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Errorf(format+": %w", append(args, cause)...).Error(), cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ae, ok := err.(*Error); ok {
		e = ae
	} else {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the Kind from err, defaulting to Failed for plain errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ae, ok := err.(*Error); ok {
		return ae.Kind
	}
	return Failed
}
