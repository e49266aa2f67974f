// Package auth implements the credential and authorization core of the Chap
// server: one-way token hashing, hierarchical scope matching, constraint-based
// narrowing, and the identity-resolving HTTP middleware. Raw token material
// exists only transiently at issuance and verification time; stores only ever
// see digests.
package auth

import "chap/internal/constants"

// User represents an authenticated user in the system.
// Sensitive fields (password hash, TOTP secret) are excluded from JSON serialization.
type User struct {
	ID               int64  `json:"id"`
	Username         string `json:"username"`
	DisplayName      string `json:"display_name"`
	IsAdmin          bool   `json:"is_admin"`
	IsActive         bool   `json:"is_active"`
	IsBootstrap      bool   `json:"is_bootstrap"`
	TOTPEnabled      bool   `json:"totp_enabled"`
	CreatedAt        int64  `json:"created_at"`
	UpdatedAt        int64  `json:"updated_at"`
	CreatedBy        *int64 `json:"created_by,omitempty"`
	FailedLoginCount int    `json:"-"`
	LockedUntil      *int64 `json:"-"`
}

// UserWithSensitive includes the password hash and TOTP secret for internal use.
// These fields must never be serialized to JSON or returned in API responses.
type UserWithSensitive struct {
	User
	PasswordHash string  `json:"-"`
	TOTPSecret   *string `json:"-"`
}

// Token represents a long-lived bearer credential: a session token, a
// personal API token, or a platform key. The raw secret is never persisted;
// TokenHash is its BLAKE3 digest and doubles as the lookup key.
type Token struct {
	ID          int64        `json:"id"`
	UserID      *int64       `json:"user_id,omitempty"` // nil for platform keys
	Name        string       `json:"name"`
	Kind        string       `json:"kind"` // session | personal | platform | node
	TokenHash   string       `json:"-"`
	TokenPrefix string       `json:"token_prefix"`
	Scopes      []string     `json:"scopes"`
	Constraints *Constraints `json:"constraints,omitempty"`
	ExpiresAt   *int64       `json:"expires_at,omitempty"`
	LastUsedAt  *int64       `json:"last_used_at,omitempty"`
	Revoked     bool         `json:"revoked"`
	CreatedAt   int64        `json:"created_at"`
}

// Node represents a remote agent that consumes minted access tokens.
// Each node carries its own signing secret so a leaked key is bounded
// to that one node.
type Node struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Secret    string `json:"-"`
	CreatedAt int64  `json:"created_at"`
	CreatedBy *int64 `json:"created_by,omitempty"`
}

// Identity represents the resolved identity of an authenticated request.
// It is attached to the request context by the auth middleware.
// User is nil for platform keys.
type Identity struct {
	User  *User  `json:"user,omitempty"`
	Token *Token `json:"token"`
}

// IsAdmin reports whether the identity may use administrative operations.
// Users qualify by their admin flag; unowned platform keys qualify by
// holding the admin scope.
func (id *Identity) IsAdmin() bool {
	if id == nil {
		return false
	}
	if id.User != nil {
		return id.User.IsAdmin
	}
	return id.Token != nil && ScopeAllows(id.Token.Scopes, constants.ScopeAdmin)
}

// HasScope reports whether the identity's token grants the required scope.
func (id *Identity) HasScope(required string) bool {
	if id == nil || id.Token == nil {
		return false
	}
	return ScopeAllows(id.Token.Scopes, required)
}

// WithinConstraints reports whether the identity's token constraints permit
// acting on the requested dimensions.
func (id *Identity) WithinConstraints(requested Constraints) bool {
	if id == nil || id.Token == nil {
		return false
	}
	return id.Token.Constraints.Allows(requested)
}
