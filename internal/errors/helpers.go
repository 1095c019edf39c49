package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a local cache error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("cache %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Local storage operation failed")
}

// NewBackendError creates an error for a message API call, marking it
// retryable for transport-level and 5xx/429/408 failures.
func NewBackendError(endpoint string, statusCode int, err error) *AppError {
	retryable := statusCode == 0 || statusCode >= 500 || statusCode == 429 || statusCode == 408

	appErr := Wrap(err, ErrCodeBackendAPI, "backend API call failed").
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode).
		WithUserMessage("Could not reach the server, please retry")

	appErr.Retryable = retryable
	return appErr
}

// NewRealtimeError creates an error for the realtime feed; always retryable
// since the caller falls back to polling.
func NewRealtimeError(operation string, err error) *AppError {
	return WrapRetryable(err, ErrCodeRealtimeChannel, fmt.Sprintf("realtime %s failed", operation)).
		WithContext("operation", operation)
}

// NewMediaError creates a media upload/validation error
func NewMediaError(reason string, err error) *AppError {
	return Wrap(err, ErrCodeMediaUpload, reason).
		WithUserMessage("Media upload failed, message was not sent")
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Session expired, please sign in again")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s is no longer available", resource))
}

// NewConflictError creates an error for an expected concurrent-edit conflict
func NewConflictError(resource string, err error) *AppError {
	return Wrap(err, ErrCodeConflict, fmt.Sprintf("%s changed concurrently", resource)).
		WithContext("resource", resource).
		WithUserMessage(fmt.Sprintf("%s is no longer available", resource))
}
