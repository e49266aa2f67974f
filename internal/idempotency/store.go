// Package idempotency stores responses to mutating requests keyed by
// caller token, Idempotency-Key header, method, and path, so retries of
// the same request replay the original response instead of re-executing.
package idempotency

import (
	"database/sql"
	"fmt"
	"time"
)

// Record is a stored response for one idempotent request.
type Record struct {
	TokenID    int64
	Key        string
	Method     string
	Path       string
	StatusCode int
	Body       []byte
	ExpiresAt  int64
}

// Store persists idempotency records in the core database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store over the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Remember stores the response for a request. A live record already present
// for the same (token, key, method, path) is left untouched; the first stored
// response wins. An expired row still waiting for the prune pass is replaced,
// so the reprocessed response becomes replayable again.
func (s *Store) Remember(tokenID int64, key, method, path string, statusCode int, body []byte, ttl time.Duration) error {
	now := s.now()
	expiresAt := now.Add(ttl).Unix()
	_, err := s.db.Exec(`
		INSERT INTO idempotency_records (token_id, idempotency_key, method, path, status_code, response_body, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token_id, idempotency_key, method, path) DO UPDATE SET
			status_code = excluded.status_code,
			response_body = excluded.response_body,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
		WHERE idempotency_records.expires_at <= ?
	`, tokenID, key, method, path, statusCode, body, expiresAt, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}
	return nil
}

// Find returns the stored response for a request, or nil when none exists
// or the record's TTL has passed. An expired row is treated as absent even
// before pruning removes it.
func (s *Store) Find(tokenID int64, key, method, path string) (*Record, error) {
	rec := &Record{TokenID: tokenID, Key: key, Method: method, Path: path}
	err := s.db.QueryRow(`
		SELECT status_code, response_body, expires_at
		FROM idempotency_records
		WHERE token_id = ? AND idempotency_key = ? AND method = ? AND path = ?
	`, tokenID, key, method, path).Scan(&rec.StatusCode, &rec.Body, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load idempotency record: %w", err)
	}
	if rec.ExpiresAt <= s.now().Unix() {
		return nil, nil
	}
	return rec, nil
}

// PruneExpired removes records whose TTL has passed.
func (s *Store) PruneExpired() error {
	_, err := s.db.Exec("DELETE FROM idempotency_records WHERE expires_at <= ?", s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to prune idempotency records: %w", err)
	}
	return nil
}
