// Package errors provides structured error types for bundlewire.
//
// The resolution engine distinguishes a small number of error classes:
//   - Construction errors: a declaration that can never form a valid Revision
//   - Ownership errors: moving or mutating a Revision owned by another State
//   - Algorithmic limits: the solver exceeded its iteration bound
//   - Persistence I/O errors: reading or writing a cached graph failed
//
// Unsatisfiable constraints are NOT errors. They are absorbed by the resolver
// and surface only as unresolved revisions in the returned delta. Likewise a
// corrupt or version-mismatched cache file reads as "no cached graph".
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidDeclaration, "revision %d declares an identity capability", id)
//	if errors.Is(err, errors.ErrCodeInvalidDeclaration) {
//	    // reject the declaration
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeIO, origErr, "write %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput       Code = "INVALID_INPUT"
	ErrCodeInvalidDeclaration Code = "INVALID_DECLARATION"
	ErrCodeInvalidVersion     Code = "INVALID_VERSION"
	ErrCodeInvalidFilter      Code = "INVALID_FILTER"
	ErrCodeInvalidFormat      Code = "INVALID_FORMAT"
	ErrCodeInvalidConfig      Code = "INVALID_CONFIG"
	ErrCodeInvalidPath        Code = "INVALID_PATH"

	// State errors
	ErrCodeOwnership Code = "OWNERSHIP"
	ErrCodeNotFound  Code = "NOT_FOUND"

	// Resolver errors
	ErrCodeIterationLimit Code = "ITERATION_LIMIT"

	// Persistence errors
	ErrCodeIO      Code = "IO_ERROR"
	ErrCodeNetwork Code = "NETWORK_ERROR"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Fatal reports whether err belongs to a class the engine never absorbs:
// construction, ownership and iteration-limit errors.
func Fatal(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidDeclaration, ErrCodeOwnership, ErrCodeIterationLimit:
		return true
	}
	return false
}

// IterationLimitError carries the bound that was exceeded.
type IterationLimitError struct {
	Limit      int // Configured maximum
	Unresolved int // Revisions still undecided when the bound was hit
}

// Error implements the error interface.
func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("resolver exceeded %d iterations with %d revisions undecided", e.Limit, e.Unresolved)
}

// Code returns the error code for this error type.
func (e *IterationLimitError) Code() Code {
	return ErrCodeIterationLimit
}
