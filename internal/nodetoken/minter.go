// Package nodetoken mints and verifies the short-lived JWTs the server
// hands to agents for direct node access. Each token is signed with the
// per-node pre-shared secret, so a token minted for one node is useless
// against any other.
package nodetoken

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chap/internal/auth"
	"chap/internal/constants"
)

// Node agents parse aud as a plain string, so a single-element audience must
// not serialize as a JSON array. jwt/v5 defaults to the array form.
func init() {
	jwt.MarshalSingleStringAsArray = false
}

// SecretSource resolves the signing secret for a node. Implementations must
// return an error for unknown nodes or nodes without a secret; there is no
// fallback key.
type SecretSource interface {
	NodeSecret(nodeID string) (string, error)
}

// Claims is the payload of a node access token.
type Claims struct {
	jwt.RegisteredClaims
	NodeID      string            `json:"node_id"`
	Scopes      []string          `json:"scopes,omitempty"`
	Constraints *auth.Constraints `json:"constraints,omitempty"`
}

// Minter issues and verifies node access tokens.
type Minter struct {
	secrets SecretSource
	now     func() time.Time
}

// NewMinter creates a minter backed by the given secret source.
func NewMinter(secrets SecretSource) *Minter {
	return &Minter{
		secrets: secrets,
		now:     time.Now,
	}
}

// ClampTTL bounds a requested token lifetime to the allowed range. A zero or
// negative request gets the minimum.
func ClampTTL(ttl time.Duration) time.Duration {
	if ttl < constants.NodeTokenMinTTL {
		return constants.NodeTokenMinTTL
	}
	if ttl > constants.NodeTokenMaxTTL {
		return constants.NodeTokenMaxTTL
	}
	return ttl
}

// Mint issues a token for the node, carrying the given scopes and
// constraints, valid for the clamped TTL. Minting fails outright when the
// node has no secret configured.
func (m *Minter) Mint(nodeID string, scopes []string, constraints *auth.Constraints, ttl time.Duration) (string, *Claims, error) {
	secret, err := m.secrets.NodeSecret(nodeID)
	if err != nil {
		return "", nil, fmt.Errorf("cannot mint token for node %s: %w", nodeID, err)
	}

	ttl = ClampTTL(ttl)
	now := m.now()

	subject, err := newSubject()
	if err != nil {
		return "", nil, err
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    constants.NodeTokenIssuer,
			Audience:  jwt.ClaimStrings{constants.NodeTokenAudience},
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		NodeID:      nodeID,
		Scopes:      scopes,
		Constraints: constraints,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign node token: %w", err)
	}
	return signed, claims, nil
}

// Verify parses and validates a node access token, checking the signature
// against the secret of the node named in the claims, plus issuer, audience,
// and expiry.
func (m *Minter) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		c, ok := t.Claims.(*Claims)
		if !ok || c.NodeID == "" {
			return nil, fmt.Errorf("token missing node_id claim")
		}
		secret, err := m.secrets.NodeSecret(c.NodeID)
		if err != nil {
			return nil, err
		}
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(constants.NodeTokenIssuer),
		jwt.WithAudience(constants.NodeTokenAudience),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid node token: %w", err)
	}
	return claims, nil
}

// newSubject builds the random per-token subject identifier.
func newSubject() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token subject: %w", err)
	}
	return "nat_" + hex.EncodeToString(raw), nil
}
