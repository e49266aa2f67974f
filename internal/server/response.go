package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"chap/internal/constants"
	"chap/internal/services"
)

// APIError is the wire shape of every error response. Clients match on the
// code field; mfa_required and mfa_invalid in particular drive login flows.
type APIError struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the error code, human-readable message, and the request
// ID for correlation with server logs.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error response
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, status, APIError{Error: ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: GetRequestID(r),
	}})
}

// writeUnauthorized is the uniform 401 for missing or invalid credentials.
func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusUnauthorized, constants.ErrCodeUnauthorized, "authentication required")
}

// writeForbidden is the uniform 403 for authenticated but unauthorized calls.
func writeForbidden(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusForbidden, constants.ErrCodeForbidden, "insufficient permissions")
}

// handleServiceError maps service errors to HTTP responses.
// It extracts the error code from ServiceError and maps it to the appropriate HTTP status.
func (s *Server) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code, isServiceErr := services.IsServiceError(err)
	if !isServiceErr {
		s.logger.Error("Unhandled error on %s %s: %v", r.Method, r.URL.Path, err)
		WriteError(w, r, http.StatusInternalServerError, constants.ErrCodeInternalError, "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch code {
	case constants.ErrCodeUnauthorized, constants.ErrCodeMFARequired, constants.ErrCodeMFAInvalid:
		status = http.StatusUnauthorized
	case constants.ErrCodeForbidden, constants.ErrCodeUserDisabled, constants.ErrCodeCaptchaFailed,
		constants.ErrCodeInvalidSignature:
		status = http.StatusForbidden
	case constants.ErrCodeRateLimited, constants.ErrCodeAccountLocked:
		status = http.StatusTooManyRequests
	case constants.ErrCodeNotFound:
		status = http.StatusNotFound
	case constants.ErrCodeConflict, constants.ErrCodeUserExists:
		status = http.StatusConflict
	case constants.ErrCodeInvalidRequest, constants.ErrCodeInvalidScope,
		constants.ErrCodePasswordTooWeak, constants.ErrCodeUsernameInvalid,
		constants.ErrCodeNodeSecretUnset:
		status = http.StatusBadRequest
	}

	message := err.Error()
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		// Wrapped causes stay in the server log, not the wire.
		message = svcErr.Message
		if svcErr.Err != nil {
			s.logger.Debug("Service error on %s %s: %v", r.Method, r.URL.Path, svcErr.Err)
		}
	}

	WriteError(w, r, status, code, message)
}
