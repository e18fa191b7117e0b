package errors

import (
	"errors"
	"fmt"
)

// ErrorType defines the type of error
type ErrorType string

const (
	// ErrorTypeNotFound represents compute or preset not found errors
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeValidation represents malformed spec errors
	ErrorTypeValidation ErrorType = "validation_error"

	// ErrorTypeInUse represents deletes blocked by live instances
	ErrorTypeInUse ErrorType = "in_use"

	// ErrorTypeTimeout represents poll loops that exceeded their bound
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeInternal represents cluster API or transport failures
	ErrorTypeInternal ErrorType = "internal_error"
)

// Error represents an orchestrator error
type Error struct {
	Type    ErrorType              `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resourceType, resourceID string, err error) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Code:    "not_found",
		Message: fmt.Sprintf("%s %s not found", resourceType, resourceID),
		Details: map[string]interface{}{
			"resourceType": resourceType,
			"resourceId":   resourceID,
		},
		Err: err,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details map[string]interface{}, err error) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Code:    "validation_error",
		Message: message,
		Details: details,
		Err:     err,
	}
}

// NewInUseError creates a new in use error
func NewInUseError(resourceType, resourceID string, replicas int32) *Error {
	return &Error{
		Type:    ErrorTypeInUse,
		Code:    "in_use",
		Message: fmt.Sprintf("%s %s has %d live instances", resourceType, resourceID, replicas),
		Details: map[string]interface{}{
			"resourceType": resourceType,
			"resourceId":   resourceID,
			"replicas":     replicas,
		},
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(operation, message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeTimeout,
		Code:    "timeout",
		Message: message,
		Details: map[string]interface{}{
			"operation": operation,
		},
		Err: err,
	}
}

// NewInternalError creates a new internal error wrapping a cluster API failure
func NewInternalError(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Code:    "internal_error",
		Message: message,
		Err:     err,
	}
}

// ComputeError wraps an error with the compute it relates to and the
// operation that failed, so callers can log actionable context without
// parsing strings.
type ComputeError struct {
	ComputeID string
	Op        string
	Err       error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute %s: %s: %v", e.ComputeID, e.Op, e.Err)
}

func (e *ComputeError) Unwrap() error {
	return e.Err
}

// NewComputeError creates a new compute error
func NewComputeError(computeID, op string, err error) *ComputeError {
	return &ComputeError{ComputeID: computeID, Op: op, Err: err}
}

// PresetError wraps an error with the preset it relates to and the
// operation that failed.
type PresetError struct {
	PresetID string
	Op       string
	Err      error
}

func (e *PresetError) Error() string {
	return fmt.Sprintf("preset %s: %s: %v", e.PresetID, e.Op, e.Err)
}

func (e *PresetError) Unwrap() error {
	return e.Err
}

// NewPresetError creates a new preset error
func NewPresetError(presetID, op string, err error) *PresetError {
	return &PresetError{PresetID: presetID, Op: op, Err: err}
}

// typeOf walks the error chain and returns the type of the first *Error found
func typeOf(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return "", false
}

// IsNotFound checks whether the error chain contains a not found error
func IsNotFound(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeNotFound
}

// IsValidation checks whether the error chain contains a validation error
func IsValidation(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeValidation
}

// IsInUse checks whether the error chain contains an in use error
func IsInUse(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeInUse
}

// IsTimeout checks whether the error chain contains a timeout error
func IsTimeout(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeTimeout
}

// IsInternal checks whether the error chain contains an internal error
func IsInternal(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeInternal
}
