package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"chap/internal/audit"
	"chap/internal/constants"
	"chap/internal/services"
)

// /api/admin/users: create user accounts (POST, admin)
func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	identity := s.requireAuth(w, r)
	if identity == nil {
		return
	}
	if !s.requireAdmin(w, r, identity) {
		return
	}
	if r.Method != http.MethodPost {
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
		return
	}

	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
		IsAdmin     bool   `json:"is_admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "invalid JSON")
		return
	}

	var createdBy *int64
	if identity.User != nil {
		createdBy = &identity.User.ID
	}
	user, err := s.app.Services.Auth.CreateUser(req.Username, req.DisplayName, req.Password, req.IsAdmin, createdBy)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, user)
}

// /api/admin/platform-keys: list (GET) or mint (POST) platform keys
func (s *Server) handleAdminPlatformKeys(w http.ResponseWriter, r *http.Request) {
	identity := s.requireAuth(w, r)
	if identity == nil {
		return
	}
	if !s.requireAdmin(w, r, identity) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		keys, err := s.app.Services.Token.ListPlatformKeys()
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"keys": keys})

	case http.MethodPost:
		var req services.CreateTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "invalid JSON")
			return
		}
		result, err := s.app.Services.Token.CreatePlatformKey(req, getClientIP(r), getAuditUsername(identity))
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, result)

	default:
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
	}
}

// DELETE /api/admin/platform-keys/{id}: revoke a platform key
func (s *Server) handleAdminPlatformKeyByID(w http.ResponseWriter, r *http.Request) {
	identity := s.requireAuth(w, r)
	if identity == nil {
		return
	}
	if !s.requireAdmin(w, r, identity) {
		return
	}
	if r.Method != http.MethodDelete {
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/admin/platform-keys/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "invalid key id")
		return
	}

	if err := s.app.Services.Token.RevokePlatformKey(id, identity, getClientIP(r)); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

// GET /api/admin/audit: query the audit log
func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	identity := s.requireAuth(w, r)
	if identity == nil {
		return
	}
	if !s.requireAdmin(w, r, identity) {
		return
	}
	if r.Method != http.MethodGet {
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
		return
	}

	q := r.URL.Query()
	opts := audit.QueryOptions{
		Action:   q.Get("action"),
		Username: q.Get("username"),
	}
	if v := q.Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}
	if v := q.Get("since"); v != "" {
		opts.Since, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("until"); v != "" {
		opts.Until, _ = strconv.ParseInt(v, 10, 64)
	}
	if opts.Action != "" && !audit.IsValidAction(opts.Action) {
		WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "unknown audit action")
		return
	}

	entries, err := audit.Query(s.app.DB, opts)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, constants.ErrCodeInternalError, "internal error")
		return
	}
	total, err := audit.Count(s.app.DB, opts)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, constants.ErrCodeInternalError, "internal error")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
	})
}
