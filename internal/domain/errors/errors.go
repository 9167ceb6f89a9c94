package errors

import (
	"errors"
	"fmt"
)

// ErrorType buckets every engine error into the category callers
// switch on.
type ErrorType string

const (
	// ErrorTypeValidation marks malformed input. The evaluation still
	// produces a decline verdict.
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeDataUnavailable marks an unreachable backing resource.
	// The pipeline degrades instead of failing.
	ErrorTypeDataUnavailable ErrorType = "data_unavailable"

	// ErrorTypeSignalFailure marks an external signal source fault.
	// The gateway absorbs these into failed results; they never escape
	// an evaluation.
	ErrorTypeSignalFailure ErrorType = "signal_failure"

	// ErrorTypeConfiguration marks invalid settings, caught at load
	// time rather than during an evaluation.
	ErrorTypeConfiguration ErrorType = "configuration"

	ErrorTypeNotFound ErrorType = "not_found"
	ErrorTypeInternal ErrorType = "internal"
)

// AppError carries the category, a stable machine code, and the HTTP
// status the REST layer maps it to.
type AppError struct {
	Type       ErrorType
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
	Retryable  bool
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithCause attaches the underlying error so wrapped-chain matching
// still works.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func newError(typ ErrorType, code, message string, status int, retryable bool) *AppError {
	return &AppError{
		Type:       typ,
		Code:       code,
		Message:    message,
		StatusCode: status,
		Retryable:  retryable,
	}
}

// NewValidationError rejects malformed input under the given machine
// code.
func NewValidationError(code, message string) *AppError {
	return newError(ErrorTypeValidation, code, message, 400, false)
}

// NewDataUnavailableError marks a required backing resource (history
// store, baseline source) as temporarily unreachable. Callers degrade
// rather than fail the evaluation.
func NewDataUnavailableError(resource, message string) *AppError {
	err := newError(ErrorTypeDataUnavailable, "DATA_UNAVAILABLE", message, 503, true)
	err.Details = map[string]interface{}{"resource": resource}
	return err
}

// NewSignalFailureError reports an external signal source failure.
func NewSignalFailureError(source, reason string) *AppError {
	err := newError(ErrorTypeSignalFailure, "SIGNAL_FAILURE",
		fmt.Sprintf("signal source %s failed: %s", source, reason), 502, true)
	err.Details = map[string]interface{}{"source": source, "reason": reason}
	return err
}

// NewConfigurationError rejects invalid configuration (non-monotonic
// thresholds, non-positive weights).
func NewConfigurationError(field, message string) *AppError {
	err := newError(ErrorTypeConfiguration, "INVALID_CONFIGURATION", message, 500, false)
	err.Details = map[string]interface{}{"field": field}
	return err
}

func NewNotFoundError(resource string) *AppError {
	return newError(ErrorTypeNotFound, "RESOURCE_NOT_FOUND", resource+" not found", 404, false)
}

func NewInternalError(message string) *AppError {
	return newError(ErrorTypeInternal, "INTERNAL_ERROR", message, 500, true)
}

var (
	ErrNilTransaction  = NewValidationError("NIL_TRANSACTION", "Transaction must not be nil")
	ErrVerdictNotFound = NewNotFoundError("verdict")
)

// IsType reports whether err carries the given category anywhere in
// its chain.
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == errorType
}

func IsValidation(err error) bool      { return IsType(err, ErrorTypeValidation) }
func IsDataUnavailable(err error) bool { return IsType(err, ErrorTypeDataUnavailable) }
func IsConfiguration(err error) bool   { return IsType(err, ErrorTypeConfiguration) }
