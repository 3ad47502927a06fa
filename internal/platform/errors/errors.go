// Package errors provides a structured error type with wrapping and metadata
package errors

// Always import the project errors package as perr (platform/errors)

import (
	stderrs "errors"
	"fmt"
	"strings"
)

// ErrorCode defines supported error codes used across services
// Values are stable for wire compatibility; add sparingly
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodeValidation is for malformed manifests or content, rejected
	// before any network activity and never retried
	ErrorCodeValidation

	// ErrorCodeInvalidArgument is for bad input parameters
	ErrorCodeInvalidArgument

	// ErrorCodeNotFound is for missing resources
	ErrorCodeNotFound

	// ErrorCodeConflict is for a competing instance or in-flight operation
	ErrorCodeConflict

	// ErrorCodeTransportTransient is for network/timeout/rate-limit shaped
	// failures where retry with backoff may succeed
	ErrorCodeTransportTransient

	// ErrorCodeTransportPermanent is for authorization/validation shaped
	// transport failures where retry can never succeed
	ErrorCodeTransportPermanent

	// ErrorCodeCancelled is for operator initiated cancellation
	ErrorCodeCancelled

	// ErrorCodeIntegrity is for digest mismatches found during verification
	ErrorCodeIntegrity

	// ErrorCodeExhausted is for hard resource ceilings (part count, encoding
	// size) hit at construction time, not recoverable by retry
	ErrorCodeExhausted

	// ErrorCodeStorage is for persistence backend errors
	ErrorCodeStorage

	// ErrorCodeJSON is for JSON parsing/encoding errors
	ErrorCodeJSON
)

// ErrNotFound is a sentinel not found error for convenience
var ErrNotFound = New(ErrorCodeNotFound, "not found")

// Error is the structured error type with wrapping and metadata
// msg is human/developer facing; code is machine facing
// field is optional (for validation); op is optional operation tag
// orig is the wrapped cause
type Error struct {
	orig  error
	msg   string
	code  ErrorCode
	field string
	op    string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Field returns the offending field, if any
func (e *Error) Field() string { return e.field }

// Op returns the operation label, if set
func (e *Error) Op() string { return e.op }

// Root returns the deepest wrapped cause
func Root(err error) error {
	for err != nil {
		u := stderrs.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
	return nil
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Mutators (copy-on-write)

// WithField attaches a field to an *Error (copy-on-write). If err isn't *Error, returns err unchanged
func WithField(err error, field string) error {
	if e, ok := As(err); ok {
		c := *e
		c.field = field
		return &c
	}
	return err
}

// WithOp attaches an operation label to an *Error (copy-on-write). If err isn't *Error, returns err unchanged
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// Constructors

// New returns a new *Error with the given code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// WrapIf wraps only when err != nil (helper for 1-liners)
func WrapIf(err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, msg)
}

// Sugar

// NotFoundf returns a not found error
func NotFoundf(format string, a ...any) error { return Newf(ErrorCodeNotFound, format, a...) }

// InvalidArgf returns an invalid argument error
func InvalidArgf(format string, a ...any) error { return Newf(ErrorCodeInvalidArgument, format, a...) }

// Validationf returns a validation error
func Validationf(format string, a ...any) error { return Newf(ErrorCodeValidation, format, a...) }

// Conflictf returns a conflict error
func Conflictf(format string, a ...any) error { return Newf(ErrorCodeConflict, format, a...) }

// Integrityf returns an integrity error
func Integrityf(format string, a ...any) error { return Newf(ErrorCodeIntegrity, format, a...) }

// Exhaustedf returns a resource exhaustion error
func Exhaustedf(format string, a ...any) error { return Newf(ErrorCodeExhausted, format, a...) }

// Storagef returns a storage backend error
func Storagef(format string, a ...any) error { return Newf(ErrorCodeStorage, format, a...) }

// JSONErrf returns a JSON error
func JSONErrf(format string, a ...any) error { return Newf(ErrorCodeJSON, format, a...) }

// Cancelledf returns a cancellation error
func Cancelledf(format string, a ...any) error { return Newf(ErrorCodeCancelled, format, a...) }

// Transport classification

// permanentHints are lowercase substrings that mark a transport failure as
// permanent: authorization and validation shaped messages from the ledger
var permanentHints = []string{
	"unauthorized",
	"forbidden",
	"invalid signature",
	"not authorized",
	"permission denied",
	"bad request",
	"payload too large",
	"validation failed",
	"rejected",
}

// cancelHints mark operator initiated aborts surfaced through the transport
var cancelHints = []string{
	"cancelled",
	"canceled",
	"operation was aborted",
}

// ClassifyTransport maps an arbitrary transport error onto the retry
// taxonomy. Errors already carrying one of our codes keep it; otherwise the
// message is matched against known permanent and cancellation shapes, and
// anything unrecognized defaults to transient so it gets retried
func ClassifyTransport(err error) ErrorCode {
	if err == nil {
		return ErrorCodeUnknown
	}
	if e, ok := As(err); ok {
		switch e.code {
		case ErrorCodeTransportTransient, ErrorCodeTransportPermanent, ErrorCodeCancelled:
			return e.code
		}
	}
	msg := strings.ToLower(err.Error())
	for _, h := range cancelHints {
		if strings.Contains(msg, h) {
			return ErrorCodeCancelled
		}
	}
	// rate-limit text wins over permanent hints ("request rejected, rate
	// limit exceeded" must stay retryable)
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return ErrorCodeTransportTransient
	}
	for _, h := range permanentHints {
		if strings.Contains(msg, h) {
			return ErrorCodeTransportPermanent
		}
	}
	return ErrorCodeTransportTransient
}
