// Package audit records security-relevant events to an append-only log in
// the core database: logins and failures, token lifecycle, MFA changes,
// node registration, and authorization denials.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Logger provides thread-safe audit logging
type Logger struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewLogger creates a new audit logger
func NewLogger(db *sql.DB) *Logger {
	return &Logger{
		db:  db,
		now: time.Now,
	}
}

// Log records an audit entry (thread-safe, append-only)
func (l *Logger) Log(action string, ipAddress string, username string, details interface{}) error {
	if !IsValidAction(action) {
		return fmt.Errorf("invalid action type: %s", action)
	}

	var detailsJSON sql.NullString
	if details != nil {
		jsonBytes, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
		detailsJSON = sql.NullString{String: string(jsonBytes), Valid: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`
		INSERT INTO audit_log (timestamp, action, ip_address, username, details_json)
		VALUES (?, ?, ?, ?, ?)
	`, l.now().Unix(), action, ipAddress, username, detailsJSON)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}
