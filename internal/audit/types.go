package audit

import (
	"chap/internal/constants"
)

// Entry represents a single audit log entry
type Entry struct {
	ID        int64       `json:"id"`
	Timestamp int64       `json:"timestamp"`
	Action    string      `json:"action"`
	IPAddress string      `json:"ip_address"`
	Username  string      `json:"username"`
	Details   interface{} `json:"details,omitempty"`
}

// =============================================================================
// Detail Structs: Authentication
// =============================================================================

// LoginDetails holds details for login action
type LoginDetails struct {
	UserAgent string `json:"user_agent,omitempty"`
	MFAUsed   bool   `json:"mfa_used"`
}

// LoginFailedDetails holds details for login_failed action
type LoginFailedDetails struct {
	AttemptedUsername string `json:"attempted_username"`
	Reason            string `json:"reason"`
	UserAgent         string `json:"user_agent,omitempty"`
}

// LogoutDetails holds details for logout action
type LogoutDetails struct{}

// DeniedDetails holds details for denied action
type DeniedDetails struct {
	Method        string `json:"method"`
	Path          string `json:"path"`
	RequiredScope string `json:"required_scope,omitempty"`
	Reason        string `json:"reason"`
}

// =============================================================================
// Detail Structs: Token Management
// =============================================================================

// TokenCreatedDetails holds details for token_created action
type TokenCreatedDetails struct {
	TokenID     int64    `json:"token_id"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Scopes      []string `json:"scopes,omitempty"`
	Constrained bool     `json:"constrained"`
}

// TokenRevokedDetails holds details for token_revoked action
type TokenRevokedDetails struct {
	TokenID int64  `json:"token_id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
}

// =============================================================================
// Detail Structs: MFA
// =============================================================================

// MFAChangedDetails holds details for mfa_enabled and mfa_disabled actions
type MFAChangedDetails struct {
	TargetUserID   int64  `json:"target_user_id"`
	TargetUsername string `json:"target_username"`
}

// =============================================================================
// Detail Structs: Nodes
// =============================================================================

// NodeCreatedDetails holds details for node_created action
type NodeCreatedDetails struct {
	NodeID   string `json:"node_id"`
	NodeName string `json:"node_name"`
}

// NodeTokenMintedDetails holds details for node_token_minted action
type NodeTokenMintedDetails struct {
	NodeID     string   `json:"node_id"`
	Subject    string   `json:"subject"`
	Scopes     []string `json:"scopes,omitempty"`
	TTLSeconds int64    `json:"ttl_seconds"`
}

// =============================================================================
// Detail Structs: Bootstrap
// =============================================================================

// BootstrapDetails holds details for bootstrap action
type BootstrapDetails struct {
	AdminUsername string `json:"admin_username"`
}

// =============================================================================
// Validation
// =============================================================================

// IsValidAction checks if an action type is valid
func IsValidAction(action string) bool {
	for _, valid := range constants.AllAuditActions {
		if action == valid {
			return true
		}
	}
	return false
}
