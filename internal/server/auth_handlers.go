package server

import (
	"encoding/json"
	"net/http"
	"time"

	"chap/internal/auth"
	"chap/internal/constants"
	"chap/internal/services"
	"chap/internal/version"
)

// =============================================================================
// Public Endpoints
// =============================================================================

// GET /api/health: liveness probe, no auth
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version.Version,
		"uptime":  int64(time.Since(s.app.StartedAt).Seconds()),
	})
}

// POST /api/auth/login: authenticate and receive a session token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
		return
	}

	var req services.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "invalid JSON")
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "username and password are required")
		return
	}

	result, err := s.app.Services.Auth.Login(req, getClientIP(r), r.UserAgent())
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// =============================================================================
// Session Endpoints
// =============================================================================

// POST /api/auth/logout: delete the presented session
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
		return
	}
	identity := s.requireAuth(w, r)
	if identity == nil {
		return
	}

	if err := s.app.Services.Auth.Logout(auth.BearerToken(r), getClientIP(r), getAuditUsername(identity)); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"logged_out": true})
}

// GET /api/auth/me: the caller's resolved identity
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
		return
	}
	identity := s.requireAuth(w, r)
	if identity == nil {
		return
	}
	WriteJSON(w, http.StatusOK, identity)
}

// POST /api/auth/password: change the caller's own password
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
		return
	}
	identity := s.requireAuth(w, r)
	if identity == nil {
		return
	}
	if identity.User == nil {
		// Platform keys have no password to change.
		writeForbidden(w, r)
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "invalid JSON")
		return
	}

	if err := s.app.Services.Auth.ChangePassword(identity.User.ID, req.CurrentPassword, req.NewPassword); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"changed": true})
}

// =============================================================================
// MFA Endpoints
// =============================================================================

// mfaUser resolves the caller to a real user; platform keys cannot enroll.
func (s *Server) mfaUser(w http.ResponseWriter, r *http.Request) *auth.Identity {
	identity := s.requireAuth(w, r)
	if identity == nil {
		return nil
	}
	if identity.User == nil {
		writeForbidden(w, r)
		return nil
	}
	return identity
}

// POST /api/mfa/setup: generate a pending TOTP secret
func (s *Server) handleMFASetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
		return
	}
	identity := s.mfaUser(w, r)
	if identity == nil {
		return
	}

	setup, err := s.app.Services.Auth.SetupMFA(identity.User.ID)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, setup)
}

// POST /api/mfa/enable: activate the pending secret with a valid code
func (s *Server) handleMFAEnable(w http.ResponseWriter, r *http.Request) {
	s.handleMFAChange(w, r, s.app.Services.Auth.EnableMFA)
}

// POST /api/mfa/disable: turn MFA off, also requires a valid code
func (s *Server) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	s.handleMFAChange(w, r, s.app.Services.Auth.DisableMFA)
}

func (s *Server) handleMFAChange(w http.ResponseWriter, r *http.Request, change func(int64, string, string) error) {
	if r.Method != http.MethodPost {
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
		return
	}
	identity := s.mfaUser(w, r)
	if identity == nil {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "invalid JSON")
		return
	}

	if err := change(identity.User.ID, req.Code, getClientIP(r)); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
