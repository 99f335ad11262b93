// Package memerr defines the stable error taxonomy surfaced at the CLI
// boundary. Internal layers return either a *MemnexError (store, search,
// linkgraph, exportimport) or a plain wrapped error; at the CLI boundary
// As extracts the typed error from the chain, and a chain without one
// becomes UNKNOWN, before printing or JSON-encoding.
package memerr

import (
	"errors"
	"fmt"
)

// Code is one of the closed set of stable error codes from the CLI
// contract. New codes require a spec change, not just a new call site.
type Code string

const (
	CodeDBConnectionFailed Code = "DB_CONNECTION_FAILED"
	CodeDBCorrupted        Code = "DB_CORRUPTED"
	CodeDBLocked           Code = "DB_LOCKED"
	CodeInvalidSessionID   Code = "INVALID_SESSION_ID"
	CodeSessionNotFound    Code = "SESSION_NOT_FOUND"
	CodeSourceInaccessible Code = "SOURCE_INACCESSIBLE"
	CodeDiskFull           Code = "DISK_FULL"
	CodeInvalidJSON        Code = "INVALID_JSON"
	CodeUnknownFormat      Code = "UNKNOWN_FORMAT"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeUnknown            Code = "UNKNOWN"
)

// MemnexError is the typed error carried to the CLI boundary. It wraps an
// underlying cause (for logs and %w chains) while keeping a stable Code
// and Context for the JSON error envelope.
type MemnexError struct {
	Code    Code
	Message string
	Context map[string]any
	Cause   error
}

func (e *MemnexError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *MemnexError) Unwrap() error { return e.Cause }

// New builds a MemnexError with no wrapped cause.
func New(code Code, message string) *MemnexError {
	return &MemnexError{Code: code, Message: message}
}

// Wrap builds a MemnexError around an existing error.
func Wrap(code Code, message string, cause error) *MemnexError {
	return &MemnexError{Code: code, Message: message, Cause: cause}
}

// WithContext attaches structured context (e.g. {"path": "...", "line": 42})
// used by the JSON error envelope's optional "context" field.
func (e *MemnexError) WithContext(kv map[string]any) *MemnexError {
	e.Context = kv
	return e
}

// As extracts a *MemnexError from an error chain, defaulting to an UNKNOWN
// envelope when the chain carries no typed error.
func As(err error) *MemnexError {
	var me *MemnexError
	if errors.As(err, &me) {
		return me
	}
	return &MemnexError{Code: CodeUnknown, Message: err.Error(), Cause: err}
}

// ExitCode maps a code to the CLI exit-code convention (§6): 0 success
// (not reachable from here), 1 user-visible failure, 2 internal/store
// error. Cooperative interrupt (130) is handled by internal/lifecycle,
// not through this taxonomy.
func (e *MemnexError) ExitCode() int {
	switch e.Code {
	case CodeDBConnectionFailed, CodeDBCorrupted, CodeDiskFull:
		return 2
	default:
		return 1
	}
}
