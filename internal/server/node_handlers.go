package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"chap/internal/constants"
	"chap/internal/services"
)

const (
	scopeNodesRead  = "nodes:read"
	scopeNodesToken = "nodes:token"
)

// /api/nodes: list (GET) or register (POST, admin) nodes
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	identity := s.requireAuth(w, r)
	if identity == nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !s.requireScope(w, r, identity, scopeNodesRead) {
			return
		}
		nodes, err := s.app.Services.Node.ListNodes()
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})

	case http.MethodPost:
		if !s.requireAdmin(w, r, identity) {
			return
		}
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "invalid JSON")
			return
		}

		var createdBy *int64
		if identity.User != nil {
			createdBy = &identity.User.ID
		}
		result, err := s.app.Services.Node.CreateNode(req.Name, createdBy, getClientIP(r), getAuditUsername(identity))
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, result)

	default:
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
	}
}

// /api/nodes/{id}/access-token: mint a short-lived node access token
func (s *Server) handleNodeRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/nodes/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "access-token" || parts[0] == "" {
		WriteError(w, r, http.StatusNotFound, constants.ErrCodeNotFound, "not found")
		return
	}
	nodeID := parts[0]

	if r.Method != http.MethodPost {
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
		return
	}
	identity := s.requireAuth(w, r)
	if identity == nil {
		return
	}
	if !s.requireScope(w, r, identity, scopeNodesToken) {
		return
	}

	var req services.MintTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "invalid JSON")
		return
	}

	// The minted token can only carry scopes and dimensions the caller's
	// own credential already covers.
	for _, scope := range req.Scopes {
		if !identity.HasScope(scope) {
			s.auditDenied(r, identity, scope, "scope_escalation")
			writeForbidden(w, r)
			return
		}
	}
	if req.Constraints != nil && !identity.WithinConstraints(*req.Constraints) {
		s.auditDenied(r, identity, "", "constraint_escalation")
		writeForbidden(w, r)
		return
	}

	result, err := s.app.Services.Node.MintAccessToken(nodeID, req, getClientIP(r), getAuditUsername(identity))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
