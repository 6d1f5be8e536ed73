package utils

import (
	"fmt"
)

// ServiceError represents a service-level error with context
type ServiceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"` // Original error, not exposed in JSON
}

func (e ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e ServiceError) Unwrap() error {
	return e.Cause
}

// IsServiceError checks if an error is a service error
func IsServiceError(err error) bool {
	_, ok := err.(ServiceError)
	return ok
}

// GetServiceError extracts a ServiceError from an error
func GetServiceError(err error) (ServiceError, bool) {
	if serviceErr, ok := err.(ServiceError); ok {
		return serviceErr, true
	}
	return ServiceError{}, false
}

// Error code constants
const (
	ErrCodeConfig        = "CONFIG_ERROR"
	ErrCodeParse         = "PARSE_ERROR"
	ErrCodeStorage       = "STORAGE_ERROR"
	ErrCodeTransport     = "TRANSPORT_ERROR"
	ErrCodeAuthorization = "AUTHORIZATION_ERROR"
	ErrCodeNotRunning    = "SERVICE_NOT_RUNNING"
	ErrCodeNotFound      = "NOT_FOUND"
)

// NewConfigError marks an invalid or incomplete service configuration.
func NewConfigError(message string) error {
	return ServiceError{Code: ErrCodeConfig, Message: message}
}

// NewParseError marks a malformed campaign payload; the payload is dropped,
// never retried.
func NewParseError(message string, cause error) error {
	return ServiceError{Code: ErrCodeParse, Message: message, Cause: cause}
}

// NewStorageError marks a failed store operation; in-memory state is left
// unchanged and the caller may retry.
func NewStorageError(operation string, cause error) error {
	return ServiceError{Code: ErrCodeStorage, Message: fmt.Sprintf("store operation failed: %s", operation), Cause: cause}
}

// NewTransportError marks a failed report exchange; pending events are kept
// and retried on the next natural trigger.
func NewTransportError(message string, cause error) error {
	return ServiceError{Code: ErrCodeTransport, Message: message, Cause: cause}
}

// NewAuthorizationError marks a denied or unavailable location capability.
func NewAuthorizationError(message string) error {
	return ServiceError{Code: ErrCodeAuthorization, Message: message}
}

// NewNotRunningError marks an operation attempted while the service is stopped.
func NewNotRunningError(operation string) error {
	return ServiceError{Code: ErrCodeNotRunning, Message: fmt.Sprintf("%s requires a running service", operation)}
}

// NewNotFoundError marks a missing record
func NewNotFoundError(resource string) error {
	return ServiceError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}
