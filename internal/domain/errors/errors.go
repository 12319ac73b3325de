package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures inside the risk engine
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeAggregation ErrorType = "aggregation"
	ErrorTypeExternal    ErrorType = "external"
)

// AppError represents a structured application error
type AppError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Retryable bool                   `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors

// NewValidationError reports malformed or missing caller input
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewInternalError reports an unexpected failure inside an analyzer or store
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeInternal,
		Code:      "INTERNAL_ERROR",
		Message:   message,
		Retryable: true,
	}
}

// NewAggregationError reports a failure while building the final verdict
func NewAggregationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeAggregation,
		Code:    "AGGREGATION_FAILED",
		Message: message,
	}
}

// NewExternalError reports a failed call to an optional collaborator such as
// the intel provider
func NewExternalError(service, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeExternal,
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("%s service error: %s", service, message),
		Retryable: true,
		Details:   map[string]interface{}{"service": service},
	}
}

// Predefined common errors
var (
	ErrInvalidIP   = NewValidationError("INVALID_IP", "IP address is not valid")
	ErrEmptyUserID = NewValidationError("EMPTY_USER_ID", "user ID is required")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}
