package constants

import "time"

// HTTP Server Timeouts
const (
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 30 * time.Second
	HTTPIdleTimeout  = 120 * time.Second
)

// Content Types
const (
	ContentTypeJSON = "application/json"
)

// HTTP Header Names
const (
	HeaderContentType    = "Content-Type"
	HeaderAuthorization  = "Authorization"
	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "Idempotency-Key"

	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRetryAfter         = "Retry-After"

	HeaderHubSignature = "X-Hub-Signature-256"
)

// Bearer prefix on the Authorization header
const AuthBearerPrefix = "Bearer "
