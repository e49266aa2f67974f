package services

import (
	"regexp"
	"time"

	"chap/internal/audit"
	"chap/internal/auth"
	"chap/internal/captcha"
	"chap/internal/config"
	"chap/internal/constants"
	"chap/internal/logger"
	"chap/internal/ratelimit"
	"chap/internal/totp"
)

var usernameRegex = regexp.MustCompile(constants.AuthUsernameRegex)

// AuthService manages login, logout, MFA lifecycle, and user accounts.
type AuthService struct {
	cfg     *config.Config
	logger  *logger.Logger
	store   *auth.Store
	audit   *audit.Logger
	limiter *ratelimit.Limiter
	captcha *captcha.Verifier
	now     func() time.Time
}

// NewAuthService creates a new auth service.
func NewAuthService(cfg *config.Config, log *logger.Logger, store *auth.Store, auditLog *audit.Logger, limiter *ratelimit.Limiter, verifier *captcha.Verifier) *AuthService {
	return &AuthService{
		cfg:     cfg,
		logger:  log,
		store:   store,
		audit:   auditLog,
		limiter: limiter,
		captcha: verifier,
		now:     time.Now,
	}
}

// LoginRequest carries the credentials for a login attempt.
type LoginRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	TOTPCode        string `json:"totp_code,omitempty"`
	CaptchaResponse string `json:"captcha_response,omitempty"`
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Token     string     `json:"token"`
	ExpiresAt int64      `json:"expires_at"`
	User      *auth.User `json:"user"`
}

// ============================================================================
// Authentication
// ============================================================================

// Login validates credentials and creates a session.
// Returns the plaintext session token; only its hash is stored.
func (s *AuthService) Login(req LoginRequest, ipAddress, userAgent string) (*LoginResult, error) {
	s.logger.Info("Auth: login attempt for user=%s from ip=%s", req.Username, ipAddress)

	if err := s.captcha.Verify(req.CaptchaResponse, ipAddress); err != nil {
		s.logger.Info("Auth: captcha rejected for user=%s: %v", req.Username, err)
		s.auditFailure(req.Username, ipAddress, userAgent, "captcha_failed")
		return nil, ErrCaptchaFailed
	}

	user, err := s.store.GetUserByUsername(req.Username)
	if err != nil || user == nil {
		// Generic error to prevent user enumeration
		s.logger.Debug("Auth: user not found: %s", req.Username)
		s.auditFailure(req.Username, ipAddress, userAgent, "unknown_user")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.logger.Info("Auth: login denied for disabled user=%s", req.Username)
		s.auditFailure(req.Username, ipAddress, userAgent, "user_disabled")
		return nil, ErrUserDisabled
	}

	// Check lockout
	if user.LockedUntil != nil {
		if s.now().Unix() < *user.LockedUntil {
			s.logger.Info("Auth: login denied for locked user=%s (locked until %d)", req.Username, *user.LockedUntil)
			s.auditFailure(req.Username, ipAddress, userAgent, "account_locked")
			return nil, ErrAccountLocked
		}
		// Lockout expired, reset counter
		s.store.ResetFailedLogin(user.ID)
		user.FailedLoginCount = 0
	}

	// Verify password
	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		s.store.IncrementFailedLogin(user.ID)
		s.logger.Info("Auth: invalid password for user=%s (attempt %d)", req.Username, user.FailedLoginCount+1)
		s.auditFailure(req.Username, ipAddress, userAgent, "bad_password")
		return nil, ErrInvalidCredentials
	}

	// MFA gate: the password alone never opens a session once TOTP is on.
	mfaUsed := false
	if user.TOTPEnabled && user.TOTPSecret != nil {
		if req.TOTPCode == "" {
			return nil, ErrMFARequired
		}
		if !totp.VerifyCode(*user.TOTPSecret, req.TOTPCode, constants.TOTPWindow, s.now()) {
			s.store.IncrementFailedLogin(user.ID)
			s.logger.Info("Auth: invalid TOTP code for user=%s", req.Username)
			s.auditFailure(req.Username, ipAddress, userAgent, "bad_totp")
			return nil, ErrMFAInvalid
		}
		mfaUsed = true
	}

	// Reset failed login count on success
	if user.FailedLoginCount > 0 {
		s.store.ResetFailedLogin(user.ID)
	}
	s.limiter.Reset(constants.RateBucketLogin, ipAddress)

	// Create session
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, WrapInternalError(err)
	}

	expiresAt := s.now().Add(s.cfg.Session.Duration()).Unix()
	_, err = s.store.CreateToken(&auth.Token{
		UserID:      &user.ID,
		Name:        "session",
		Kind:        constants.TokenKindSession,
		TokenHash:   auth.HashToken(token),
		TokenPrefix: auth.ExtractTokenPrefix(token),
		Scopes:      []string{constants.ScopeAll},
		ExpiresAt:   &expiresAt,
	})
	if err != nil {
		return nil, WrapInternalError(err)
	}

	s.logger.Info("Auth: user=%s logged in from ip=%s", req.Username, ipAddress)
	s.audit.Log(constants.AuditActionLogin, ipAddress, user.Username, audit.LoginDetails{
		UserAgent: userAgent,
		MFAUsed:   mfaUsed,
	})

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      &user.User,
	}, nil
}

// Logout deletes the session behind the presented token. Idempotent: an
// already-deleted session is not an error.
func (s *AuthService) Logout(rawToken, ipAddress, username string) error {
	if err := s.store.DeleteSessionByHash(auth.HashToken(rawToken)); err != nil {
		return WrapInternalError(err)
	}
	s.audit.Log(constants.AuditActionLogout, ipAddress, username, audit.LogoutDetails{})
	return nil
}

func (s *AuthService) auditFailure(username, ipAddress, userAgent, reason string) {
	s.audit.Log(constants.AuditActionLoginFailed, ipAddress, "", audit.LoginFailedDetails{
		AttemptedUsername: username,
		Reason:            reason,
		UserAgent:         userAgent,
	})
}

// ============================================================================
// User Management
// ============================================================================

// CreateUser creates a new user account. Admin-only at the handler level.
func (s *AuthService) CreateUser(username, displayName, password string, isAdmin bool, createdBy *int64) (*auth.User, error) {
	if !usernameRegex.MatchString(username) {
		return nil, ErrUsernameInvalid
	}
	if len(password) < constants.AuthMinPasswordLength || len(password) > constants.AuthMaxPasswordLength {
		return nil, ErrPasswordTooWeak
	}
	if existing, err := s.store.GetUserByUsername(username); err == nil && existing != nil {
		return nil, ErrUserExists
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, WrapInternalError(err)
	}
	user, err := s.store.CreateUser(username, displayName, hash, isAdmin, createdBy)
	if err != nil {
		return nil, WrapInternalError(err)
	}

	s.logger.Info("Auth: created user=%s admin=%v", username, isAdmin)
	return user, nil
}

// ChangePassword updates a user's own password after verifying the current one.
func (s *AuthService) ChangePassword(userID int64, currentPassword, newPassword string) error {
	user, err := s.store.GetUserByID(userID)
	if err != nil || user == nil {
		return ErrUserNotFound
	}
	if err := auth.VerifyPassword(currentPassword, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}
	if len(newPassword) < constants.AuthMinPasswordLength || len(newPassword) > constants.AuthMaxPasswordLength {
		return ErrPasswordTooWeak
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return WrapInternalError(err)
	}
	if err := s.store.UpdateUserPassword(userID, hash); err != nil {
		return WrapInternalError(err)
	}
	return nil
}

// ============================================================================
// MFA Lifecycle
// ============================================================================

// MFASetup holds the secret material handed to the user during enrollment.
type MFASetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// SetupMFA generates and stores a pending TOTP secret for the user. The
// secret stays inactive until EnableMFA confirms the user can produce codes.
func (s *AuthService) SetupMFA(userID int64) (*MFASetup, error) {
	user, err := s.store.GetUserByID(userID)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}
	if user.TOTPEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		return nil, WrapInternalError(err)
	}
	if err := s.store.SetTOTPSecret(userID, secret); err != nil {
		return nil, WrapInternalError(err)
	}

	return &MFASetup{
		Secret:          secret,
		ProvisioningURI: totp.ProvisioningURI(user.Username, secret, constants.AppName),
	}, nil
}

// EnableMFA activates the pending TOTP secret after the user proves they
// hold it by submitting a valid code.
func (s *AuthService) EnableMFA(userID int64, code, ipAddress string) error {
	user, err := s.store.GetUserByID(userID)
	if err != nil || user == nil {
		return ErrUserNotFound
	}
	if user.TOTPEnabled {
		return ErrMFAAlreadyEnabled
	}
	if user.TOTPSecret == nil {
		return ErrMFANotConfigured
	}
	if !totp.VerifyCode(*user.TOTPSecret, code, constants.TOTPWindow, s.now()) {
		return ErrMFAInvalid
	}
	if err := s.store.EnableTOTP(userID); err != nil {
		return WrapInternalError(err)
	}

	s.logger.Info("Auth: MFA enabled for user=%s", user.Username)
	s.audit.Log(constants.AuditActionMFAEnabled, ipAddress, user.Username, audit.MFAChangedDetails{
		TargetUserID:   user.ID,
		TargetUsername: user.Username,
	})
	return nil
}

// DisableMFA turns off TOTP for the user. Requires a currently valid code
// so a hijacked session cannot silently strip the second factor.
func (s *AuthService) DisableMFA(userID int64, code, ipAddress string) error {
	user, err := s.store.GetUserByID(userID)
	if err != nil || user == nil {
		return ErrUserNotFound
	}
	if !user.TOTPEnabled || user.TOTPSecret == nil {
		return ErrMFANotConfigured
	}
	if !totp.VerifyCode(*user.TOTPSecret, code, constants.TOTPWindow, s.now()) {
		return ErrMFAInvalid
	}
	if err := s.store.DisableTOTP(userID); err != nil {
		return WrapInternalError(err)
	}

	s.logger.Info("Auth: MFA disabled for user=%s", user.Username)
	s.audit.Log(constants.AuditActionMFADisabled, ipAddress, user.Username, audit.MFAChangedDetails{
		TargetUserID:   user.ID,
		TargetUsername: user.Username,
	})
	return nil
}

// ============================================================================
// Maintenance
// ============================================================================

// CleanupExpiredSessions removes session records past their expiry.
func (s *AuthService) CleanupExpiredSessions() {
	removed, err := s.store.DeleteExpiredSessions()
	if err != nil {
		s.logger.Warn("Auth: session cleanup failed: %v", err)
		return
	}
	if removed > 0 {
		s.logger.Debug("Auth: removed %d expired sessions", removed)
	}
}
