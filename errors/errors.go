// Package errors provides the typed error used across the stomp core.
//
// Every error the core returns carries one of the closed set of codes
// below, so callers can switch on Code() instead of matching strings.
package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode identifies the kind of failure the core detected.
type ErrorCode string

const (
	// ErrCodeParse covers malformed bytes, an unknown command, an
	// oversized frame, a bad escape sequence, or a missing NUL
	// terminator after a length-delimited body.
	ErrCodeParse ErrorCode = "PARSE_ERROR"

	// ErrCodeProtocolState covers an operation invoked in a phase that
	// does not permit it.
	ErrCodeProtocolState ErrorCode = "PROTOCOL_STATE_ERROR"

	// ErrCodeProtocolNegotiation covers an empty version intersection
	// on CONNECTED.
	ErrCodeProtocolNegotiation ErrorCode = "PROTOCOL_NEGOTIATION_ERROR"

	// ErrCodeUnknownSubscription covers a reference to a subscription
	// id or token that is not in the session's table.
	ErrCodeUnknownSubscription ErrorCode = "UNKNOWN_SUBSCRIPTION"

	// ErrCodeUnknownTransaction covers a reference to a transaction id
	// that is not in the session's active set.
	ErrCodeUnknownTransaction ErrorCode = "UNKNOWN_TRANSACTION"

	// ErrCodeUnsupportedCommand covers an operation the negotiated
	// version does not support, such as NACK on 1.0.
	ErrCodeUnsupportedCommand ErrorCode = "UNSUPPORTED_COMMAND"

	// ErrCodeInvalidHeader covers a required header that is missing or
	// not parseable, such as a non-integer content-length.
	ErrCodeInvalidHeader ErrorCode = "INVALID_HEADER"

	// ErrCodeFailoverExhausted is returned by the failover iterator
	// once it has yielded its last pair.
	ErrCodeFailoverExhausted ErrorCode = "FAILOVER_EXHAUSTED"
)

// IError is the interface every error returned by the core implements.
type IError interface {
	error

	Code() ErrorCode
	Message() string
	Cause() error
	Details() map[string]any
	Stack() string
	Is(target error) bool
	Wrap(msg string) IError
	WithDetails(details map[string]any) IError
	WithContext(key string, value any) IError
}

// StompError is the concrete IError implementation.
type StompError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

// NewError creates an error with the given code and message.
func NewError(code ErrorCode, message string) IError {
	return &StompError{
		code:    code,
		message: message,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// New is a short alias for NewError.
func New(code ErrorCode, message string) IError {
	return NewError(code, message)
}

// Newf creates an error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) IError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// NewErrorWithCause creates an error with the given code, message and
// underlying cause.
func NewErrorWithCause(code ErrorCode, message string, cause error) IError {
	return &StompError{
		code:    code,
		message: message,
		cause:   cause,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// WrapError wraps err with a code and message. Returns nil if err is nil.
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return &StompError{
		code:    code,
		message: message,
		cause:   err,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

func (e *StompError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *StompError) Code() ErrorCode { return e.code }
func (e *StompError) Message() string { return e.message }
func (e *StompError) Cause() error    { return e.cause }

func (e *StompError) Details() map[string]any {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	return e.details
}

func (e *StompError) Stack() string { return e.stack }

// Is reports whether target carries the same code, or delegates to the
// wrapped cause. Used by errors.Is via the standard Unwrap hook too.
func (e *StompError) Is(target error) bool {
	if target == nil {
		return false
	}
	if other, ok := target.(*StompError); ok {
		return e.code == other.code
	}
	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}
	return false
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *StompError) Unwrap() error {
	return e.cause
}

// Wrap returns a new error with the given message prepended, keeping the
// code and chaining the receiver as the cause.
func (e *StompError) Wrap(msg string) IError {
	return &StompError{
		code:    e.code,
		message: fmt.Sprintf("%s: %s", msg, e.message),
		cause:   e,
		details: copyMap(e.details),
		stack:   captureStack(),
	}
}

// WithDetails returns a new error with details merged in.
func (e *StompError) WithDetails(details map[string]any) IError {
	newDetails := copyMap(e.details)
	for k, v := range details {
		newDetails[k] = v
	}
	return &StompError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: newDetails,
		stack:   e.stack,
	}
}

// WithContext is a single-key convenience wrapper over WithDetails.
func (e *StompError) WithContext(key string, value any) IError {
	newDetails := copyMap(e.details)
	newDetails[key] = value
	return &StompError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: newDetails,
		stack:   e.stack,
	}
}

// HasCode reports whether err is a *StompError (at any wrap depth) with
// the given code.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var se *StompError
	if stdErrors.As(err, &se) {
		return se.code == code
	}
	return false
}

// GetCode returns the code of err, or "" if err is not a *StompError.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var se *StompError
	if stdErrors.As(err, &se) {
		return se.code
	}
	return ""
}

func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var builder strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		builder.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		if !more {
			break
		}
	}
	return builder.String()
}

func copyMap(original map[string]any) map[string]any {
	if original == nil {
		return make(map[string]any)
	}
	copied := make(map[string]any, len(original))
	for k, v := range original {
		copied[k] = v
	}
	return copied
}
