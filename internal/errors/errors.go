// Package errors provides the error definitions for the entire project.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Numeric codes used by the result stream and the CLI exit status
// - Error wrapping utilities
// - A collector for configuration validation errors
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Error codes
// ============================================================================

const (
	CodeUnknown               int32 = 1
	CodeInvalidArgument       int32 = 2
	CodeNotFound              int32 = 3
	CodeAlreadyExists         int32 = 4
	CodeOperationNotPermitted int32 = 5
	CodeConnection            int32 = 6
	CodeConfiguration         int32 = 7
	CodeNotSupported          int32 = 8
	CodeInternal              int32 = 9
	CodeTimeout               int32 = 10
)

// CodeName returns a human-readable name for an error code.
func CodeName(code int32) string {
	switch code {
	case CodeUnknown:
		return "Unknown"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeNotFound:
		return "NotFound"
	case CodeAlreadyExists:
		return "AlreadyExists"
	case CodeOperationNotPermitted:
		return "OperationNotPermitted"
	case CodeConnection:
		return "Connection"
	case CodeConfiguration:
		return "Configuration"
	case CodeNotSupported:
		return "NotSupported"
	case CodeInternal:
		return "Internal"
	case CodeTimeout:
		return "Timeout"
	default:
		return fmt.Sprintf("Code(%d)", code)
	}
}

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found errors
	ErrNotFound          = errors.New("not found")
	ErrObjectNotFound    = errors.New("object not found")
	ErrPoolNotFound      = errors.New("pool not found")
	ErrClassNotFound     = errors.New("class not found")
	ErrGroupNotFound     = errors.New("sync group not found")
	ErrRunNotFound       = errors.New("sync run not found")
	ErrDataSourceMissing = errors.New("data source not found")

	// Already exists errors
	ErrAlreadyExists = errors.New("already exists")

	// Argument and configuration errors
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrMissingField     = errors.New("missing required field")
	ErrMissingParameter = errors.New("missing required parameter")
	ErrInvalidVersion   = errors.New("invalid SNMP version")
	ErrInvalidTable     = errors.New("invalid MIB table")

	// Inventory operation errors
	ErrOperationNotPermitted = errors.New("operation not permitted")

	// Protocol errors
	ErrSNMPError        = errors.New("SNMP error")
	ErrConnectionFailed = errors.New("connection failed")
	ErrNoData           = errors.New("agent returned no data")
	ErrTimeout          = errors.New("timeout")

	// Provider errors
	ErrNotSupported = errors.New("not supported")

	// Internal errors
	ErrInternal = errors.New("internal error")
	ErrDatabase = errors.New("database error")
	ErrClosed   = errors.New("closed")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrObjectNotFound) ||
		errors.Is(err, ErrPoolNotFound) ||
		errors.Is(err, ErrClassNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrDataSourceMissing)
}

// IsConfiguration returns true if err is a configuration or argument error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrMissingParameter) ||
		errors.Is(err, ErrInvalidVersion)
}

// IsConnection returns true if err is a device connectivity error.
func IsConnection(err error) bool {
	return errors.Is(err, ErrSNMPError) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrNoData) ||
		errors.Is(err, ErrTimeout)
}

// IsRetriable returns true if the error is potentially retriable by a caller.
// Nothing in this module retries on its own.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrNoData)
}

// ============================================================================
// Error to code mapping
// ============================================================================

// ErrorToCode maps a sentinel error to its numeric code.
func ErrorToCode(err error) int32 {
	if err == nil {
		return CodeUnknown
	}

	switch {
	case IsNotFound(err):
		return CodeNotFound
	case Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case Is(err, ErrOperationNotPermitted):
		return CodeOperationNotPermitted
	case Is(err, ErrNotSupported):
		return CodeNotSupported
	case Is(err, ErrTimeout):
		return CodeTimeout
	case IsConnection(err):
		return CodeConnection
	case Is(err, ErrInvalidArgument), Is(err, ErrInvalidTable):
		return CodeInvalidArgument
	case IsConfiguration(err):
		return CodeConfiguration
	default:
		return CodeInternal
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewObjectNotFound creates an object-not-found error with context.
func NewObjectNotFound(className, id string) error {
	return fmt.Errorf("%s with id %s: %w", className, id, ErrObjectNotFound)
}

// NewPoolNotFound creates a pool-not-found error with context.
func NewPoolNotFound(id string) error {
	return fmt.Errorf("pool with id %s: %w", id, ErrPoolNotFound)
}

// NewInvalidArgument creates an invalid argument error with context.
func NewInvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

// NewMissingParameter creates a missing parameter error for a sync data source.
func NewMissingParameter(param, dataSource string, id int64) error {
	return fmt.Errorf("parameter %s not defined in data source %s (id %d): %w", param, dataSource, id, ErrMissingParameter)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
