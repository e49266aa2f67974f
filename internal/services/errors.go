package services

import (
	"errors"
	"fmt"

	"chap/internal/constants"
)

// ServiceError represents a service-level error with an error code
type ServiceError struct {
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new service error
func NewServiceError(code, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

// WrapServiceError wraps an existing error with a service error
func WrapServiceError(code, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, Err: err}
}

// WrapInternalError wraps an unexpected failure as an internal error.
// The wrapped cause stays server-side; clients only see the generic message.
func WrapInternalError(err error) *ServiceError {
	return &ServiceError{Code: constants.ErrCodeInternalError, Message: "internal error", Err: err}
}

// IsServiceError checks if an error is a ServiceError and returns its code
func IsServiceError(err error) (string, bool) {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code, true
	}
	return "", false
}

// Pre-defined service errors for common cases
var (
	// Authentication errors. Invalid credentials deliberately share one
	// message so responses cannot be used for user enumeration.
	ErrInvalidCredentials = NewServiceError(constants.ErrCodeUnauthorized, "invalid credentials")
	ErrAccountLocked      = NewServiceError(constants.ErrCodeAccountLocked, "account is temporarily locked")
	ErrUserDisabled       = NewServiceError(constants.ErrCodeUserDisabled, "account is disabled")
	ErrMFARequired        = NewServiceError(constants.ErrCodeMFARequired, "multi-factor code required")
	ErrMFAInvalid         = NewServiceError(constants.ErrCodeMFAInvalid, "invalid multi-factor code")
	ErrCaptchaFailed      = NewServiceError(constants.ErrCodeCaptchaFailed, "challenge verification failed")

	// Authorization errors
	ErrForbidden = NewServiceError(constants.ErrCodeForbidden, "insufficient permissions")

	// Token errors
	ErrTokenNotFound = NewServiceError(constants.ErrCodeNotFound, "token not found")
	ErrInvalidScope  = NewServiceError(constants.ErrCodeInvalidScope, "invalid scope")

	// User errors
	ErrUsernameInvalid = NewServiceError(constants.ErrCodeUsernameInvalid, "username must be 3-64 lowercase letters, digits, hyphens, or underscores")
	ErrPasswordTooWeak = NewServiceError(constants.ErrCodePasswordTooWeak, "password does not meet length requirements")
	ErrUserExists      = NewServiceError(constants.ErrCodeUserExists, "username already taken")
	ErrUserNotFound    = NewServiceError(constants.ErrCodeNotFound, "user not found")

	// MFA errors
	ErrMFANotConfigured  = NewServiceError(constants.ErrCodeInvalidRequest, "multi-factor auth not set up")
	ErrMFAAlreadyEnabled = NewServiceError(constants.ErrCodeConflict, "multi-factor auth already enabled")

	// Node errors
	ErrNodeNotFound    = NewServiceError(constants.ErrCodeNotFound, "node not found")
	ErrNodeExists      = NewServiceError(constants.ErrCodeConflict, "node name already taken")
	ErrNodeSecretUnset = NewServiceError(constants.ErrCodeNodeSecretUnset, "node has no signing secret")
)
