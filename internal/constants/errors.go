package constants

// API Error Codes: these are wire format, returned in the error body and
// matched by clients (the MFA markers in particular drive client flows).
const (
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeForbidden      = "forbidden"
	ErrCodeMFARequired    = "mfa_required"
	ErrCodeMFAInvalid     = "mfa_invalid"
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeInternalError  = "internal_error"

	// Supplemented surfaces
	ErrCodeAccountLocked    = "account_locked"
	ErrCodeUserDisabled     = "user_disabled"
	ErrCodePasswordTooWeak  = "password_too_weak"
	ErrCodeUsernameInvalid  = "username_invalid"
	ErrCodeUserExists       = "user_exists"
	ErrCodeCaptchaFailed    = "captcha_failed"
	ErrCodeNodeSecretUnset  = "node_secret_unset"
	ErrCodeInvalidScope     = "invalid_scope"
	ErrCodeInvalidSignature = "invalid_signature"
)
