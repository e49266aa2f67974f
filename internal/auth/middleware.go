package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"chap/internal/constants"
	"chap/internal/logger"
)

// contextKey is an unexported type for context keys in this package.
type contextKey int

const (
	identityContextKey contextKey = iota
)

// Middleware provides HTTP middleware for authentication.
type Middleware struct {
	store  *Store
	logger *logger.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(store *Store, log *logger.Logger) *Middleware {
	return &Middleware{store: store, logger: log}
}

// Authenticate extracts and validates the identity from the request.
// Sets Identity on context. Handlers that require auth use RequireAuth to check.
// This middleware always calls next; it does not block unauthenticated requests.
// Individual handlers decide whether auth is required for their endpoint.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := m.resolveIdentity(r)
		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveIdentity attempts to extract a valid identity from the request's
// bearer credential. Any storage failure resolves to no identity; token
// auth fails closed.
func (m *Middleware) resolveIdentity(r *http.Request) *Identity {
	raw := BearerToken(r)
	if raw == "" {
		return nil
	}

	token, err := m.store.GetTokenByHash(HashToken(raw))
	if err != nil {
		m.logger.Error("Auth: token lookup failed: %v", err)
		return nil
	}
	if token == nil || token.Revoked {
		return nil
	}
	now := time.Now().Unix()
	if token.ExpiresAt != nil && *token.ExpiresAt <= now {
		return nil
	}

	identity := &Identity{Token: token}

	if token.UserID != nil {
		user, err := m.store.GetUserByID(*token.UserID)
		if err != nil {
			m.logger.Debug("Auth: owner lookup failed for token %d: %v", token.ID, err)
			return nil
		}
		if !user.IsActive {
			m.logger.Debug("Auth: token owner %s is inactive", user.Username)
			return nil
		}
		if user.LockedUntil != nil && now < *user.LockedUntil {
			m.logger.Debug("Auth: token owner %s is locked until %d", user.Username, *user.LockedUntil)
			return nil
		}
		identity.User = &user.User
	}

	// Best-effort last-used update; lost updates are tolerable.
	if err := m.store.TouchToken(token.ID); err != nil {
		m.logger.Warn("Auth: failed to touch token %d: %v", token.ID, err)
	}

	return identity
}

// BearerToken extracts the raw bearer credential from the Authorization
// header, or "" if missing/malformed.
func BearerToken(r *http.Request) string {
	header := r.Header.Get(constants.HeaderAuthorization)
	if !strings.HasPrefix(header, constants.AuthBearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(header, constants.AuthBearerPrefix)
}

// GetIdentity retrieves the authenticated identity from the request context.
// Returns nil if no identity is present (unauthenticated request).
func GetIdentity(r *http.Request) *Identity {
	identity, _ := r.Context().Value(identityContextKey).(*Identity)
	return identity
}

// WithIdentity returns a context carrying the given identity (used by tests
// and by the idempotency middleware).
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// RequireAuth is a helper that extracts the identity and returns false if not present.
// Handlers use this to enforce authentication:
//
//	identity, ok := auth.RequireAuth(r)
//	if !ok { response.Unauthorized(w, r); return }
func RequireAuth(r *http.Request) (*Identity, bool) {
	identity := GetIdentity(r)
	if identity == nil || identity.Token == nil {
		return nil, false
	}
	return identity, true
}
