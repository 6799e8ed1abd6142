package operations

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of operation error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeDependency   ErrorType = "dependency"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancellation ErrorType = "cancellation"
	ErrorTypeFatal        ErrorType = "fatal"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInvalidState ErrorType = "invalid_state"
)

// OperationError represents an operation-specific error
type OperationError struct {
	Type      ErrorType              `json:"type"`
	Step      string                 `json:"step,omitempty"`
	Message   string                 `json:"message"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Retryable bool                   `json:"retryable"`
}

// Error implements the error interface
func (e *OperationError) Error() string {
	if e == nil {
		return "unknown operation error"
	}
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Step, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(step, message string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeValidation,
		Step:    step,
		Message: message,
	}
}

// NewDependencyError creates a new dependency error
func NewDependencyError(step, dependsOn, message string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeDependency,
		Step:    step,
		Message: message,
		Context: map[string]interface{}{
			"depends_on": dependsOn,
		},
	}
}

// NewExecutionError creates a new execution error
func NewExecutionError(step string, cause error, retryable bool) *OperationError {
	return &OperationError{
		Type:      ErrorTypeExecution,
		Step:      step,
		Message:   "step execution failed",
		Cause:     cause,
		Retryable: retryable,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(step string, timeout string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeTimeout,
		Step:    step,
		Message: fmt.Sprintf("step exceeded timeout of %s", timeout),
		Context: map[string]interface{}{
			"timeout": timeout,
		},
		Retryable: true,
	}
}

// NewCancellationError creates a new cancellation error
func NewCancellationError(step string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeCancellation,
		Step:    step,
		Message: "operation was cancelled",
	}
}

// NewFatalError creates a new fatal error
func NewFatalError(message string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypeFatal,
		Message: message,
		Cause:   cause,
	}
}

// NewStepNotFoundError reports a request for an unregistered step
func NewStepNotFoundError(step string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeNotFound,
		Step:    step,
		Message: "step is not registered",
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Retryable
	}
	return false
}

// GetErrorType returns the type of the error
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Type
	}
	return ErrorTypeExecution
}

// WrapError wraps an error with operation context
func WrapError(err error, step string, message string) *OperationError {
	if err == nil {
		return nil
	}

	var opErr *OperationError
	if errors.As(err, &opErr) {
		wrapped := *opErr
		if wrapped.Step == "" {
			wrapped.Step = step
		}
		if message != "" {
			wrapped.Message = fmt.Sprintf("%s: %s", message, wrapped.Message)
		}
		return &wrapped
	}

	return &OperationError{
		Type:    ErrorTypeExecution,
		Step:    step,
		Message: message,
		Cause:   err,
	}
}

// Common operation errors
var (
	// ErrOperationNotFound is returned when an operation cannot be found
	ErrOperationNotFound = &OperationError{
		Type:    ErrorTypeNotFound,
		Message: "operation not found",
	}

	// ErrOperationNotRunning is returned when cancelling an operation that is not running
	ErrOperationNotRunning = &OperationError{
		Type:    ErrorTypeInvalidState,
		Message: "operation is not running",
	}

	// ErrQueueFull is returned when the job queue cannot accept work
	ErrQueueFull = &OperationError{
		Type:    ErrorTypeInvalidState,
		Message: "job queue is full",
	}
)
