package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"chap/internal/constants"
)

// maxWebhookBody bounds the request body read for signature verification.
const maxWebhookBody = 1 << 20

// POST /api/webhooks/github: receive push events, authenticated by HMAC
// signature rather than a bearer token.
func (s *Server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, r, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "method not allowed")
		return
	}

	secret := s.app.Config.GitHub.WebhookSecret
	if secret == "" {
		WriteError(w, r, http.StatusNotFound, constants.ErrCodeNotFound, "webhook not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "failed to read body")
		return
	}

	if !verifyHubSignature(secret, body, r.Header.Get(constants.HeaderHubSignature)) {
		s.logger.Warn("Webhook: rejected delivery with bad signature from %s", getClientIP(r))
		WriteError(w, r, http.StatusForbidden, constants.ErrCodeInvalidSignature, "signature verification failed")
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	var payload struct {
		Ref        string `json:"ref"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		WriteError(w, r, http.StatusBadRequest, constants.ErrCodeInvalidRequest, "invalid JSON payload")
		return
	}

	s.logger.Info("Webhook: received %s event for repo=%s ref=%s", event, payload.Repository.FullName, payload.Ref)
	WriteJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// verifyHubSignature checks the sha256= HMAC header GitHub sends with each
// delivery. Constant-time compare; a missing or malformed header fails.
func verifyHubSignature(secret string, body []byte, header string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	sent, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(sent, mac.Sum(nil))
}
