package auth

import (
	"strings"

	"chap/internal/constants"
)

// ScopeAllows reports whether any of the granted scopes covers the required
// scope. Scopes are colon-delimited hierarchical paths ("deployments:write").
// Matching rules, evaluated per granted entry:
//
//   - "*" or "*:*" grants everything
//   - segments are compared positionally; a "*" segment matches that segment
//     and everything deeper
//   - a granted scope with fewer segments than required still matches when
//     all its explicit segments matched, so "deployments" grants
//     "deployments:write" (shorter scope = broader grant)
//   - any positional mismatch rejects that entry; remaining entries are
//     still tried
//
// The result is the OR across all granted entries. An empty grant list
// denies everything except the empty required scope.
func ScopeAllows(granted []string, required string) bool {
	requiredParts := splitScope(required)

	for _, grant := range granted {
		if grant == constants.ScopeAll || grant == constants.ScopeAllDeep {
			return true
		}
		if scopeMatches(splitScope(grant), requiredParts) {
			return true
		}
	}

	return required == ""
}

// scopeMatches compares one granted scope against the required scope,
// both pre-split into segments.
func scopeMatches(grant, required []string) bool {
	for i, seg := range grant {
		if seg == constants.ScopeWildcard {
			return true
		}
		if i >= len(required) {
			// Granted scope is more specific than required
			// ("deployments:write" does not cover "deployments").
			return false
		}
		if seg != required[i] {
			return false
		}
	}
	// Grant ran out of segments without a mismatch: broader grant, matches.
	return true
}

func splitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Split(scope, constants.ScopeSeparator)
}

// Constraints narrows where a token's scopes apply. A non-empty value on a
// dimension requires the requested value to be string-equal; empty values
// impose no restriction. All dimensions must pass.
type Constraints struct {
	TeamID        string `json:"team_id,omitempty"`
	ProjectID     string `json:"project_id,omitempty"`
	EnvironmentID string `json:"environment_id,omitempty"`
	ApplicationID string `json:"application_id,omitempty"`
	NodeID        string `json:"node_id,omitempty"`
}

// IsZero reports whether no dimension is constrained.
func (c *Constraints) IsZero() bool {
	return c == nil || *c == Constraints{}
}

// Allows reports whether the requested dimensions satisfy the constraints.
// A nil receiver is unrestricted.
func (c *Constraints) Allows(requested Constraints) bool {
	if c == nil {
		return true
	}
	for _, dim := range [][2]string{
		{c.TeamID, requested.TeamID},
		{c.ProjectID, requested.ProjectID},
		{c.EnvironmentID, requested.EnvironmentID},
		{c.ApplicationID, requested.ApplicationID},
		{c.NodeID, requested.NodeID},
	} {
		if dim[0] != "" && dim[0] != dim[1] {
			return false
		}
	}
	return true
}
