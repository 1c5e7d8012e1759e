package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the whiteboard tutor
 *
 * Geometry, merge and placement errors are local and non-fatal.
 * Network and malformed-response errors abort the current analysis cycle.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Core errors
	ErrorEmptyInput        ErrorCode = "EMPTY_INPUT"
	ErrorUnresolvedTarget  ErrorCode = "UNRESOLVED_TARGET"
	ErrorInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrorBusy              ErrorCode = "BUSY"

	// Collaborator errors
	ErrorNetwork           ErrorCode = "NETWORK_ERROR"
	ErrorMalformedResponse ErrorCode = "MALFORMED_RESPONSE"

	// Request errors
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorNotFound     ErrorCode = "NOT_FOUND"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ProcessingError represents a structured error raised during an analysis cycle
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	CycleID   string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// WithCycle tags the error with the analysis cycle it belongs to
func (e *ProcessingError) WithCycle(cycleID string) *ProcessingError {
	e.CycleID = cycleID
	return e
}

// CodeOf returns the code of the first ProcessingError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsCode reports whether err's chain holds a ProcessingError with the given code
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsNetwork reports whether err aborts a cycle as a collaborator failure.
// Malformed responses propagate the same way as transport failures.
func IsNetwork(err error) bool {
	code := CodeOf(err)
	return code == ErrorNetwork || code == ErrorMalformedResponse
}

// Factory functions for common errors

func NewEmptyInputError(operation string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEmptyInput,
		Message:   fmt.Sprintf("%s requires at least one point", operation),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

func NewUnresolvedTargetError(targetID string, kind string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnresolvedTarget,
		Message:   fmt.Sprintf("annotation target %s not found", targetID),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"target_id":   targetID,
			"target_kind": kind,
		},
	}
}

func NewInvalidTransitionError(from, to string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidTransition,
		Message:   fmt.Sprintf("board cannot move from %s to %s", from, to),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"from": from,
			"to":   to,
		},
	}
}

func NewBusyError(scope string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorBusy,
		Message:   "an analysis cycle is already running",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"scope": scope,
		},
	}
}

func NewNetworkError(service string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNetwork,
		Message:   fmt.Sprintf("call to %s failed", service),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"service": service,
		},
		Cause: cause,
	}
}

func NewMalformedResponseError(service string, reason string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorMalformedResponse,
		Message:   fmt.Sprintf("%s returned an unusable response: %s", service, reason),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"service": service,
			"reason":  reason,
		},
		Cause: cause,
	}
}

func NewInvalidInputError(message string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidInput,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func NewNotFoundError(resource string, id string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNotFound,
		Message:   fmt.Sprintf("%s %s not found", resource, id),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

func NewStorageFailedError(operation string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   fmt.Sprintf("failed to %s", operation),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for interaction log storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.CycleID != "" {
		result["cycle_id"] = e.CycleID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
