package services

import (
	"strings"
	"time"

	"chap/internal/audit"
	"chap/internal/auth"
	"chap/internal/constants"
	"chap/internal/logger"
)

// TokenService manages personal API tokens and platform keys.
type TokenService struct {
	logger *logger.Logger
	store  *auth.Store
	audit  *audit.Logger
	now    func() time.Time
}

// NewTokenService creates a new token service.
func NewTokenService(log *logger.Logger, store *auth.Store, auditLog *audit.Logger) *TokenService {
	return &TokenService{
		logger: log,
		store:  store,
		audit:  auditLog,
		now:    time.Now,
	}
}

// CreateTokenRequest carries the parameters for minting a new credential.
type CreateTokenRequest struct {
	Name        string            `json:"name"`
	Scopes      []string          `json:"scopes"`
	Constraints *auth.Constraints `json:"constraints,omitempty"`
	ExpiresIn   int64             `json:"expires_in,omitempty"` // seconds, 0 = never
}

// CreateTokenResult returns the stored record plus the raw secret, shown
// exactly once.
type CreateTokenResult struct {
	Token *auth.Token `json:"token"`
	Raw   string      `json:"raw_token"`
}

// validateScopes rejects empty and malformed scope strings before they are
// persisted. A scope is segments of non-empty text or * joined by colons.
func validateScopes(scopes []string) error {
	if len(scopes) == 0 {
		return ErrInvalidScope
	}
	for _, scope := range scopes {
		if scope == "" {
			return ErrInvalidScope
		}
		for _, segment := range strings.Split(scope, constants.ScopeSeparator) {
			if segment == "" {
				return ErrInvalidScope
			}
		}
	}
	return nil
}

// CreatePersonalToken mints a personal API token owned by the user. The
// token's scopes can only be checked, never widened, after creation.
func (s *TokenService) CreatePersonalToken(userID int64, req CreateTokenRequest, ipAddress, username string) (*CreateTokenResult, error) {
	if req.Name == "" {
		return nil, NewServiceError(constants.ErrCodeInvalidRequest, "token name is required")
	}
	if err := validateScopes(req.Scopes); err != nil {
		return nil, err
	}

	raw, err := auth.GeneratePersonalToken()
	if err != nil {
		return nil, WrapInternalError(err)
	}

	record := &auth.Token{
		UserID:      &userID,
		Name:        req.Name,
		Kind:        constants.TokenKindPersonal,
		TokenHash:   auth.HashToken(raw),
		TokenPrefix: auth.ExtractTokenPrefix(raw),
		Scopes:      req.Scopes,
		Constraints: req.Constraints,
	}
	if req.ExpiresIn > 0 {
		expiresAt := s.now().Add(time.Duration(req.ExpiresIn) * time.Second).Unix()
		record.ExpiresAt = &expiresAt
	}

	token, err := s.store.CreateToken(record)
	if err != nil {
		return nil, WrapInternalError(err)
	}

	s.logger.Info("Tokens: created personal token id=%d name=%s for user=%s", token.ID, token.Name, username)
	s.audit.Log(constants.AuditActionTokenCreated, ipAddress, username, audit.TokenCreatedDetails{
		TokenID:     token.ID,
		Name:        token.Name,
		Kind:        token.Kind,
		Scopes:      token.Scopes,
		Constrained: token.Constraints != nil,
	})

	return &CreateTokenResult{Token: token, Raw: raw}, nil
}

// CreatePlatformKey mints an unowned platform key. Admin-only at the
// handler level.
func (s *TokenService) CreatePlatformKey(req CreateTokenRequest, ipAddress, username string) (*CreateTokenResult, error) {
	if req.Name == "" {
		return nil, NewServiceError(constants.ErrCodeInvalidRequest, "key name is required")
	}
	if err := validateScopes(req.Scopes); err != nil {
		return nil, err
	}

	raw, err := auth.GeneratePlatformKey()
	if err != nil {
		return nil, WrapInternalError(err)
	}

	record := &auth.Token{
		Name:        req.Name,
		Kind:        constants.TokenKindPlatform,
		TokenHash:   auth.HashToken(raw),
		TokenPrefix: auth.ExtractTokenPrefix(raw),
		Scopes:      req.Scopes,
		Constraints: req.Constraints,
	}
	if req.ExpiresIn > 0 {
		expiresAt := s.now().Add(time.Duration(req.ExpiresIn) * time.Second).Unix()
		record.ExpiresAt = &expiresAt
	}

	token, err := s.store.CreateToken(record)
	if err != nil {
		return nil, WrapInternalError(err)
	}

	s.logger.Info("Tokens: created platform key id=%d name=%s", token.ID, token.Name)
	s.audit.Log(constants.AuditActionTokenCreated, ipAddress, username, audit.TokenCreatedDetails{
		TokenID:     token.ID,
		Name:        token.Name,
		Kind:        token.Kind,
		Scopes:      token.Scopes,
		Constrained: token.Constraints != nil,
	})

	return &CreateTokenResult{Token: token, Raw: raw}, nil
}

// ListPersonalTokens returns the user's non-session tokens.
func (s *TokenService) ListPersonalTokens(userID int64) ([]auth.Token, error) {
	tokens, err := s.store.ListTokensForUser(userID)
	if err != nil {
		return nil, WrapInternalError(err)
	}
	return tokens, nil
}

// ListPlatformKeys returns all platform keys.
func (s *TokenService) ListPlatformKeys() ([]auth.Token, error) {
	tokens, err := s.store.ListPlatformKeys()
	if err != nil {
		return nil, WrapInternalError(err)
	}
	return tokens, nil
}

// RevokeToken revokes a token. Non-admin callers may only revoke their own
// tokens. Revocation is permanent and takes effect on the next request
// presenting the credential.
func (s *TokenService) RevokeToken(tokenID int64, actor *auth.Identity, ipAddress string) error {
	token, err := s.store.GetTokenByID(tokenID)
	if err != nil {
		return WrapInternalError(err)
	}
	if token == nil {
		return ErrTokenNotFound
	}

	ownsToken := actor.User != nil && token.UserID != nil && *token.UserID == actor.User.ID
	if !actor.IsAdmin() && !ownsToken {
		return ErrForbidden
	}

	if err := s.store.RevokeToken(tokenID); err != nil {
		return WrapInternalError(err)
	}

	username := ""
	if actor.User != nil {
		username = actor.User.Username
	}
	s.logger.Info("Tokens: revoked token id=%d name=%s", token.ID, token.Name)
	s.audit.Log(constants.AuditActionTokenRevoked, ipAddress, username, audit.TokenRevokedDetails{
		TokenID: token.ID,
		Name:    token.Name,
		Kind:    token.Kind,
	})
	return nil
}

// RevokePlatformKey revokes a platform key. IDs that resolve to any other
// token kind are reported as not found so the admin surface cannot be used
// to probe personal tokens.
func (s *TokenService) RevokePlatformKey(tokenID int64, actor *auth.Identity, ipAddress string) error {
	token, err := s.store.GetTokenByID(tokenID)
	if err != nil {
		return WrapInternalError(err)
	}
	if token == nil || token.Kind != constants.TokenKindPlatform {
		return ErrTokenNotFound
	}
	return s.RevokeToken(tokenID, actor, ipAddress)
}
