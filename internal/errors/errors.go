package errors

import (
	"fmt"
)

// AxonError is the structured error type for axon.
// It provides rich context for error handling, logging, and user presentation.
type AxonError struct {
	// Code is the unique error code (e.g., "ERR_201_JOB_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *AxonError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AxonError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with AxonError.
func (e *AxonError) Is(target error) bool {
	if t, ok := target.(*AxonError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *AxonError) WithDetail(key, value string) *AxonError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new AxonError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AxonError {
	return &AxonError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new AxonError with a formatted message and no cause.
func Newf(code string, format string, args ...any) *AxonError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an AxonError from an existing error.
// The error's message becomes the AxonError message.
func Wrap(code string, err error) *AxonError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AxonError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AxonError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AxonError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is an AxonError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AxonError); ok {
		return ae.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AxonError); ok {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an AxonError.
// Returns empty string if not an AxonError.
func GetCode(err error) string {
	if ae, ok := err.(*AxonError); ok {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category from an AxonError.
// Returns empty string if not an AxonError.
func GetCategory(err error) Category {
	if ae, ok := err.(*AxonError); ok {
		return ae.Category
	}
	return ""
}

// HasCode reports whether err is an AxonError carrying the given code,
// searching the whole error chain.
func HasCode(err error, code string) bool {
	for err != nil {
		if ae, ok := err.(*AxonError); ok && ae.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
