package constants

import "time"

// Token Kinds: every persisted credential is one of these
const (
	TokenKindSession  = "session"
	TokenKindPersonal = "personal"
	TokenKindPlatform = "platform"
)

// Token Prefixes (for disambiguation without DB lookup)
const (
	SessionTokenPrefix  = "chs_"
	PersonalTokenPrefix = "chp_"
	PlatformKeyPrefix   = "chk_"
)

// Scope wildcards
const (
	ScopeWildcard  = "*"
	ScopeSeparator = ":"
	ScopeAll       = "*"
	ScopeAllDeep   = "*:*"
)

// ScopeAdmin gates the administrative surface for platform keys. Users are
// admins by flag, keys by holding this scope (or the wildcard).
const (
	ScopeAdmin = "admin"
)

// Auth Configuration
const (
	AuthBcryptCost          = 12
	AuthTokenRandomBytes    = 32 // 256 bits of entropy
	AuthTokenPrefixLength   = 8  // visible prefix for identification in logs/UI
	AuthMinPasswordLength   = 12
	AuthMaxPasswordLength   = 128
	AuthMaxLoginAttempts    = 5
	AuthLockoutDurationMins = 15
	AuthBootstrapUsername   = "admin"
	AuthUsernameRegex       = `^[a-z0-9_-]{3,64}$`
	AuthPasswordGenLength   = 24 // chars for auto-generated passwords
)

// Session Configuration
const (
	AuthSessionDuration = 24 * time.Hour
)

// Node Access Tokens
const (
	NodeTokenIssuer   = "chap-server"
	NodeTokenAudience = "chap-node"
	NodeTokenMinTTL   = 30 * time.Second
	NodeTokenMaxTTL   = 600 * time.Second
	NodeSecretBytes   = 32
)

// TOTP
const (
	TOTPDigits      = 6
	TOTPPeriodSecs  = 30
	TOTPSecretBytes = 20
	TOTPWindow      = 1 // accepted time steps either side of "now"
)

// Rate Limit Buckets
const (
	RateBucketLogin   = "login"
	RateBucketWebhook = "webhook"
)

// Rate Limit Defaults
const (
	DefaultLoginRateLimit        = 10
	DefaultLoginRateWindowSecs   = 60
	DefaultWebhookRateLimit      = 120
	DefaultWebhookRateWindowSecs = 60
)

// Idempotency
const (
	IdempotencyDefaultTTL = 24 * time.Hour
	IdempotencyKeyMaxLen  = 255
)

// Outbound calls made for security-sensitive checks (CAPTCHA) fail closed;
// the timeout bounds how long a login can hang on the provider.
const CaptchaVerifyTimeout = 10 * time.Second

// Audit query paging
const (
	AuditDefaultQueryLimit = 100
	AuditMaxQueryLimit     = 1000
)

// Audit Actions
const (
	AuditActionLogin           = "login"
	AuditActionLoginFailed     = "login_failed"
	AuditActionLogout          = "logout"
	AuditActionTokenCreated    = "token_created"
	AuditActionTokenRevoked    = "token_revoked"
	AuditActionMFAEnabled      = "mfa_enabled"
	AuditActionMFADisabled     = "mfa_disabled"
	AuditActionNodeCreated     = "node_created"
	AuditActionNodeTokenMinted = "node_token_minted"
	AuditActionDenied          = "denied"
	AuditActionBootstrap       = "bootstrap"
)

// AllAuditActions returns all defined audit actions.
var AllAuditActions = []string{
	AuditActionLogin,
	AuditActionLoginFailed,
	AuditActionLogout,
	AuditActionTokenCreated,
	AuditActionTokenRevoked,
	AuditActionMFAEnabled,
	AuditActionMFADisabled,
	AuditActionNodeCreated,
	AuditActionNodeTokenMinted,
	AuditActionDenied,
	AuditActionBootstrap,
}
