// Package errors defines the error taxonomy shared by every toolup stage and
// maps it onto process exit codes.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies an error category independently of its message.
type ErrorCode string

const (
	ErrUnknown  ErrorCode = "UNKNOWN"
	ErrInternal ErrorCode = "INTERNAL"

	// Fatal categories.
	ErrConfig       ErrorCode = "CONFIG"
	ErrNetwork      ErrorCode = "NETWORK"
	ErrNoArtifact   ErrorCode = "NO_ARTIFACT"
	ErrIntegrity    ErrorCode = "INTEGRITY"
	ErrExtraction   ErrorCode = "EXTRACTION"
	ErrBuild        ErrorCode = "BUILD"
	ErrPrerequisite ErrorCode = "PREREQUISITE"
	ErrLock         ErrorCode = "LOCK"
	ErrFilesystem   ErrorCode = "FILESYSTEM"

	// ErrLinkWarning covers PATH linking and post-install verification. The
	// artifact is installed correctly when it is reported, so it never fails
	// the run.
	ErrLinkWarning ErrorCode = "LINK_WARNING"
)

// Exit codes.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitNotInstalled = 3
)

// Error is a categorized error with optional structured details.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetail attaches a key/value pair and returns the receiver.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Details: make(map[string]interface{})}
}

// Newf creates an error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap categorizes err. It returns nil when err is nil.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Details: make(map[string]interface{}), Wrapped: err}
}

// Wrapf categorizes err with a formatted message. It returns nil when err is nil.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// IsErrorCode reports whether any error in err's chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// GetErrorCode returns the outermost code in err's chain, or ErrUnknown.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrUnknown
}

// IsWarning reports whether err is non-fatal.
func IsWarning(err error) bool {
	return IsErrorCode(err, ErrLinkWarning)
}

// ExitCode maps err onto the process exit code.
func ExitCode(err error) int {
	if err == nil || IsWarning(err) {
		return ExitOK
	}
	return ExitFailure
}

// Is and As forward to the standard library so callers importing this package
// under the name errors keep chain inspection.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }
