package auth

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store provides database operations for the auth system.
type Store struct {
	db               *sql.DB
	maxLoginAttempts int
	lockoutDuration  time.Duration
}

// NewStore creates a new auth store backed by the given database.
func NewStore(db *sql.DB, maxLoginAttempts int, lockoutDuration time.Duration) *Store {
	return &Store{
		db:               db,
		maxLoginAttempts: maxLoginAttempts,
		lockoutDuration:  lockoutDuration,
	}
}

// ============================================================================
// User Operations
// ============================================================================

// CreateUser inserts a new user into the database.
// Returns the created user with its assigned ID.
func (s *Store) CreateUser(username, displayName, passwordHash string, isAdmin bool, createdBy *int64) (*User, error) {
	now := time.Now().Unix()
	result, err := s.db.Exec(`
		INSERT INTO users (username, display_name, password_hash, is_admin, is_active, is_bootstrap, created_at, updated_at, created_by)
		VALUES (?, ?, ?, ?, 1, 0, ?, ?, ?)
	`, username, displayName, passwordHash, isAdmin, now, now, createdBy)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user id: %w", err)
	}

	return &User{
		ID:          id,
		Username:    username,
		DisplayName: displayName,
		IsAdmin:     isAdmin,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   createdBy,
	}, nil
}

// CreateBootstrapUser inserts the initial admin user with is_bootstrap=1.
func (s *Store) CreateBootstrapUser(username, displayName, passwordHash string) (*User, error) {
	now := time.Now().Unix()
	result, err := s.db.Exec(`
		INSERT INTO users (username, display_name, password_hash, is_admin, is_active, is_bootstrap, created_at, updated_at, created_by)
		VALUES (?, ?, ?, 1, 1, 1, ?, ?, NULL)
	`, username, displayName, passwordHash, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get bootstrap user id: %w", err)
	}

	return &User{
		ID:          id,
		Username:    username,
		DisplayName: displayName,
		IsAdmin:     true,
		IsActive:    true,
		IsBootstrap: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

const userColumns = `id, username, display_name, password_hash, is_admin, is_active, is_bootstrap,
       totp_secret, totp_enabled, failed_login_count, locked_until, created_at, updated_at, created_by`

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(id int64) (*UserWithSensitive, error) {
	return s.scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(username string) (*UserWithSensitive, error) {
	return s.scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// CountUsers returns the total number of users.
func (s *Store) CountUsers() (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// UpdateUserPassword updates a user's password hash.
func (s *Store) UpdateUserPassword(id int64, passwordHash string) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, passwordHash, now, id)
	return err
}

// SetUserActive enables or disables a user account.
func (s *Store) SetUserActive(id int64, active bool) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`, active, now, id)
	return err
}

// IncrementFailedLogin increments the failed login counter.
// Locks the account if the configured threshold is reached.
func (s *Store) IncrementFailedLogin(id int64) error {
	now := time.Now().Unix()
	lockUntil := now + int64(s.lockoutDuration.Seconds())

	_, err := s.db.Exec(`
		UPDATE users SET
			failed_login_count = failed_login_count + 1,
			locked_until = CASE
				WHEN failed_login_count + 1 >= ? THEN ?
				ELSE locked_until
			END,
			updated_at = ?
		WHERE id = ?
	`, s.maxLoginAttempts, lockUntil, now, id)
	return err
}

// ResetFailedLogin clears the failed login counter and any lockout.
func (s *Store) ResetFailedLogin(id int64) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		UPDATE users SET failed_login_count = 0, locked_until = NULL, updated_at = ? WHERE id = ?
	`, now, id)
	return err
}

// SetTOTPSecret stores a (not yet enabled) TOTP secret for a user.
func (s *Store) SetTOTPSecret(id int64, secret string) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`UPDATE users SET totp_secret = ?, totp_enabled = 0, updated_at = ? WHERE id = ?`, secret, now, id)
	return err
}

// EnableTOTP marks the stored TOTP secret as active.
func (s *Store) EnableTOTP(id int64) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`UPDATE users SET totp_enabled = 1, updated_at = ? WHERE id = ?`, now, id)
	return err
}

// DisableTOTP clears the TOTP secret and disables MFA.
func (s *Store) DisableTOTP(id int64) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`UPDATE users SET totp_secret = NULL, totp_enabled = 0, updated_at = ? WHERE id = ?`, now, id)
	return err
}

func (s *Store) scanUser(row *sql.Row) (*UserWithSensitive, error) {
	var u UserWithSensitive
	var totpSecret sql.NullString
	var createdBy sql.NullInt64
	var lockedUntil sql.NullInt64

	err := row.Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash,
		&u.IsAdmin, &u.IsActive, &u.IsBootstrap,
		&totpSecret, &u.TOTPEnabled,
		&u.FailedLoginCount, &lockedUntil,
		&u.CreatedAt, &u.UpdatedAt, &createdBy,
	)
	if err != nil {
		return nil, err
	}

	if totpSecret.Valid {
		u.TOTPSecret = &totpSecret.String
	}
	if createdBy.Valid {
		u.CreatedBy = &createdBy.Int64
	}
	if lockedUntil.Valid {
		u.LockedUntil = &lockedUntil.Int64
	}

	return &u, nil
}

// ============================================================================
// Token Operations
// ============================================================================

// CreateToken persists a new token record. The caller supplies the hash of
// the raw secret; the raw value never reaches the store. Returns the token
// with its assigned ID.
func (s *Store) CreateToken(t *Token) (*Token, error) {
	now := time.Now().Unix()

	scopesJSON, err := json.Marshal(t.Scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scopes: %w", err)
	}

	var constraintsJSON *string
	if !t.Constraints.IsZero() {
		data, err := json.Marshal(t.Constraints)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal constraints: %w", err)
		}
		str := string(data)
		constraintsJSON = &str
	}

	result, err := s.db.Exec(`
		INSERT INTO api_tokens (user_id, name, kind, token_hash, token_prefix, scopes_json, constraints_json, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.UserID, t.Name, t.Kind, t.TokenHash, t.TokenPrefix, string(scopesJSON), constraintsJSON, t.ExpiresAt, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get token id: %w", err)
	}

	t.ID = id
	t.CreatedAt = now
	return t, nil
}

const tokenColumns = `id, user_id, name, kind, token_hash, token_prefix, scopes_json, constraints_json,
       expires_at, last_used_at, revoked, created_at`

// GetTokenByHash retrieves a token by the digest of its raw secret.
// Returns nil if no such token exists. Revocation and expiry are the
// caller's concern; the record is returned as stored.
func (s *Store) GetTokenByHash(tokenHash string) (*Token, error) {
	row := s.db.QueryRow(`SELECT `+tokenColumns+` FROM api_tokens WHERE token_hash = ?`, tokenHash)
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return t, nil
}

// GetTokenByID retrieves a token by ID. Returns nil if not found.
func (s *Store) GetTokenByID(id int64) (*Token, error) {
	row := s.db.QueryRow(`SELECT `+tokenColumns+` FROM api_tokens WHERE id = ?`, id)
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return t, nil
}

// ListTokensForUser returns all non-session tokens owned by a user.
func (s *Store) ListTokensForUser(userID int64) ([]Token, error) {
	return s.listTokens(`SELECT `+tokenColumns+` FROM api_tokens WHERE user_id = ? AND kind != 'session' ORDER BY id ASC`, userID)
}

// ListPlatformKeys returns all platform keys.
func (s *Store) ListPlatformKeys() ([]Token, error) {
	return s.listTokens(`SELECT ` + tokenColumns + ` FROM api_tokens WHERE kind = 'platform' ORDER BY id ASC`)
}

func (s *Store) listTokens(query string, args ...interface{}) ([]Token, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		t, err := scanTokenRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

// RevokeToken marks a token as revoked.
func (s *Store) RevokeToken(id int64) error {
	_, err := s.db.Exec(`UPDATE api_tokens SET revoked = 1 WHERE id = ?`, id)
	return err
}

// DeleteSessionByHash removes a session token record (logout).
func (s *Store) DeleteSessionByHash(tokenHash string) error {
	_, err := s.db.Exec(`DELETE FROM api_tokens WHERE token_hash = ? AND kind = 'session'`, tokenHash)
	return err
}

// TouchToken updates a token's last-used timestamp. Best-effort: lost
// updates under concurrency are tolerable.
func (s *Store) TouchToken(id int64) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`UPDATE api_tokens SET last_used_at = ? WHERE id = ?`, now, id)
	return err
}

// DeleteExpiredSessions removes session tokens past their expiry.
// Returns the number of sessions removed.
func (s *Store) DeleteExpiredSessions() (int64, error) {
	now := time.Now().Unix()
	result, err := s.db.Exec(`DELETE FROM api_tokens WHERE kind = 'session' AND expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type tokenScanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(row tokenScanner) (*Token, error) {
	var t Token
	var userID sql.NullInt64
	var constraintsJSON sql.NullString
	var scopesJSON string
	var expiresAt, lastUsedAt sql.NullInt64

	err := row.Scan(
		&t.ID, &userID, &t.Name, &t.Kind, &t.TokenHash, &t.TokenPrefix,
		&scopesJSON, &constraintsJSON, &expiresAt, &lastUsedAt, &t.Revoked, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		t.UserID = &userID.Int64
	}
	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Int64
	}
	if lastUsedAt.Valid {
		t.LastUsedAt = &lastUsedAt.Int64
	}
	if err := json.Unmarshal([]byte(scopesJSON), &t.Scopes); err != nil {
		return nil, fmt.Errorf("malformed scopes for token %d: %w", t.ID, err)
	}
	if constraintsJSON.Valid && constraintsJSON.String != "" {
		var c Constraints
		if err := json.Unmarshal([]byte(constraintsJSON.String), &c); err != nil {
			return nil, fmt.Errorf("malformed constraints for token %d: %w", t.ID, err)
		}
		t.Constraints = &c
	}

	return &t, nil
}

func scanTokenRows(rows *sql.Rows) (*Token, error) {
	return scanToken(rows)
}

// ============================================================================
// Node Operations
// ============================================================================

// CreateNode inserts a new node with its generated signing secret.
func (s *Store) CreateNode(id, name, secret string, createdBy *int64) (*Node, error) {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO nodes (id, name, secret, created_at, created_by) VALUES (?, ?, ?, ?, ?)
	`, id, name, secret, now, createdBy)
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	return &Node{ID: id, Name: name, Secret: secret, CreatedAt: now, CreatedBy: createdBy}, nil
}

// GetNodeByName retrieves a node by its unique name. Returns nil if not found.
func (s *Store) GetNodeByName(name string) (*Node, error) {
	var n Node
	var createdBy sql.NullInt64
	err := s.db.QueryRow(`SELECT id, name, secret, created_at, created_by FROM nodes WHERE name = ?`, name).
		Scan(&n.ID, &n.Name, &n.Secret, &n.CreatedAt, &createdBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node by name: %w", err)
	}
	if createdBy.Valid {
		n.CreatedBy = &createdBy.Int64
	}
	return &n, nil
}

// GetNode retrieves a node by ID. Returns nil if not found.
func (s *Store) GetNode(id string) (*Node, error) {
	var n Node
	var createdBy sql.NullInt64
	err := s.db.QueryRow(`SELECT id, name, secret, created_at, created_by FROM nodes WHERE id = ?`, id).
		Scan(&n.ID, &n.Name, &n.Secret, &n.CreatedAt, &createdBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	if createdBy.Valid {
		n.CreatedBy = &createdBy.Int64
	}
	return &n, nil
}

// NodeSecret returns the signing secret for a node. Implements the
// nodetoken.SecretSource contract: an unknown node or empty secret is an
// error, never a silent fallback to a shared key.
func (s *Store) NodeSecret(nodeID string) (string, error) {
	node, err := s.GetNode(nodeID)
	if err != nil {
		return "", err
	}
	if node == nil {
		return "", fmt.Errorf("node %s not found", nodeID)
	}
	if node.Secret == "" {
		return "", fmt.Errorf("node %s has no signing secret configured", nodeID)
	}
	return node.Secret, nil
}

// ListNodes returns all registered nodes.
func (s *Store) ListNodes() ([]Node, error) {
	rows, err := s.db.Query(`SELECT id, name, secret, created_at, created_by FROM nodes ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		var createdBy sql.NullInt64
		if err := rows.Scan(&n.ID, &n.Name, &n.Secret, &n.CreatedAt, &createdBy); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		if createdBy.Valid {
			n.CreatedBy = &createdBy.Int64
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
