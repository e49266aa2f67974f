package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"chap/internal/constants"
	"chap/internal/services"
)

// Scopes guarding the token endpoints. Session tokens carry * and pass all
// of these; API tokens must be granted them explicitly.
const (
	scopeTokensRead  = "tokens:read"
	scopeTokensWrite = "tokens:write"
)

// /api/tokens: list (GET) or create (POST) the caller's personal tokens
func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	identity := s.requireAuth(w, r)
	if identity == nil {
		return
	}
	if identity.User == nil {
		// Personal tokens belong to users; platform keys manage nothing here.
		writeForbidden(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !s.requireScope(w, r, identity, scopeTokensRead) {
			return
		}
		tokens, err := s.app.Services.Token.ListPersonalTokens(identity.User.ID)
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"tokens": tokens})

	case http.MethodPost:
		if !s.requireScope(w, r, identity, scopeTokensWrite) {
			return
		}
		var req services.CreateTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "invalid JSON")
			return
		}

		// A token can only delegate what its creator already holds.
		for _, scope := range req.Scopes {
			if !identity.HasScope(scope) {
				s.auditDenied(r, identity, scope, "scope_escalation")
				writeForbidden(w, r)
				return
			}
		}

		result, err := s.app.Services.Token.CreatePersonalToken(identity.User.ID, req, getClientIP(r), identity.User.Username)
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, result)

	default:
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
	}
}

// DELETE /api/tokens/{id}: revoke a token
func (s *Server) handleTokenByID(w http.ResponseWriter, r *http.Request) {
	identity := s.requireAuth(w, r)
	if identity == nil {
		return
	}
	if r.Method != http.MethodDelete {
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
		return
	}
	if !s.requireScope(w, r, identity, scopeTokensWrite) {
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/tokens/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "invalid token id")
		return
	}

	if err := s.app.Services.Token.RevokeToken(id, identity, getClientIP(r)); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}
