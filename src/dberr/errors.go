// Package dberr defines the typed errors shared by the monitoring components.
//
// Callers classify failures with errors.Is/errors.As rather than string
// matching. Each type carries enough context to decide whether the failure is
// recoverable (reconfigure, retry with backoff) or terminal for the request.
package dberr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrNotConfigured indicates no connection target has been set.
	ErrNotConfigured = errors.New("no connection target configured")

	// ErrTimeout indicates an operation exceeded its time budget.
	ErrTimeout = errors.New("operation timed out")

	// ErrNotFound indicates the referenced entity is unknown to the engine's
	// telemetry store. Polling loops should treat this as absence, not failure.
	ErrNotFound = errors.New("not found")
)

// ConfigurationError indicates the connection target is missing or unusable.
// The caller can recover by re-configuring the manager.
type ConfigurationError struct {
	Reason string
	Err    error
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(reason string, err error) *ConfigurationError {
	return &ConfigurationError{Reason: reason, Err: err}
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
}

// Unwrap returns ErrNotConfigured when no underlying cause exists, so that
// errors.Is(err, ErrNotConfigured) matches the unconfigured case.
func (e *ConfigurationError) Unwrap() error {
	if e.Err == nil {
		return ErrNotConfigured
	}
	return e.Err
}

// Is reports whether target matches this error type.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// ValidationError indicates bad caller input. Never retried automatically.
type ValidationError struct {
	Field   string // input that failed validation
	Message string // human-readable validation message
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is reports whether target matches this error type.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// TimeoutError indicates an operation exceeded its caller-supplied or default
// budget. The caller may retry with backoff.
type TimeoutError struct {
	Op  string
	Err error
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(op string, err error) *TimeoutError {
	return &TimeoutError{Op: op, Err: err}
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

// Unwrap returns ErrTimeout for errors.Is support.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// Is reports whether target matches this error type.
func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)
	return ok
}

// queryMaxLen is the maximum length of a statement echoed in error messages.
const queryMaxLen = 100

// CaptureError indicates the engine rejected a plan-capture operation.
// It carries the engine's diagnostic text.
type CaptureError struct {
	Statement string // offending statement, truncated
	Err       error  // engine error
}

// NewCaptureError creates a new CaptureError. Long statements are truncated.
func NewCaptureError(statement string, err error) *CaptureError {
	if len(statement) > queryMaxLen {
		statement = statement[:queryMaxLen] + "..."
	}
	return &CaptureError{Statement: statement, Err: err}
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	return fmt.Sprintf("plan capture failed [%s]: %v", e.Statement, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error type.
func (e *CaptureError) Is(target error) bool {
	_, ok := target.(*CaptureError)
	return ok
}

// EngineError indicates the engine returned a fault for a monitoring call.
// Surfaced with the engine diagnostic text, never retried by this layer.
type EngineError struct {
	Op  string // operation that failed (e.g. "top queries", "health")
	Err error  // underlying database error
}

// NewEngineError creates a new EngineError.
func NewEngineError(op string, err error) *EngineError {
	return &EngineError{Op: op, Err: err}
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error in %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error type.
func (e *EngineError) Is(target error) bool {
	_, ok := target.(*EngineError)
	return ok
}

// NotFoundError indicates the referenced entity does not exist in the
// engine's telemetry store. Distinguishable from transient failures.
type NotFoundError struct {
	Kind string // entity kind (e.g. "query")
	ID   string // identifier that was looked up
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Unwrap returns ErrNotFound for errors.Is support.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Is reports whether target matches this error type.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
