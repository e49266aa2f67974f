package server

import (
	"net/http"
	"strings"

	"chap/internal/audit"
	"chap/internal/auth"
	"chap/internal/constants"
)

// getClientIP extracts the client IP address from the request
// It checks proxy headers first, then falls back to RemoteAddr
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (reverse proxy)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the chain (original client)
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	ip := r.RemoteAddr
	// Remove port if present
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// getAuditUsername extracts the username from an authenticated identity for audit logging.
// Returns empty string for platform keys and unauthenticated requests.
func getAuditUsername(identity *auth.Identity) string {
	if identity != nil && identity.User != nil {
		return identity.User.Username
	}
	return ""
}

// requireAuth extracts the authenticated identity from the request.
// Returns nil and writes a 401 response if not authenticated.
func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) *auth.Identity {
	identity, ok := auth.RequireAuth(r)
	if !ok {
		writeUnauthorized(w, r)
		return nil
	}
	return identity
}

// requireScope checks that the identity's token grants the scope, recording
// a denial in the audit log otherwise.
func (s *Server) requireScope(w http.ResponseWriter, r *http.Request, identity *auth.Identity, scope string) bool {
	if identity.HasScope(scope) {
		return true
	}
	s.auditDenied(r, identity, scope, "missing_scope")
	writeForbidden(w, r)
	return false
}

// requireAdmin checks that the identity qualifies for the admin surface.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request, identity *auth.Identity) bool {
	if identity.IsAdmin() {
		return true
	}
	s.auditDenied(r, identity, "", "not_admin")
	writeForbidden(w, r)
	return false
}

func (s *Server) auditDenied(r *http.Request, identity *auth.Identity, scope, reason string) {
	s.app.AuditLogger.Log(constants.AuditActionDenied, getClientIP(r), getAuditUsername(identity), audit.DeniedDetails{
		Method:        r.Method,
		Path:          r.URL.Path,
		RequiredScope: scope,
		Reason:        reason,
	})
}
