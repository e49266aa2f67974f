package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"chap/internal/constants"
)

// QueryOptions for filtering audit logs
type QueryOptions struct {
	Limit    int
	Offset   int
	Action   string
	Username string
	Since    int64 // Unix timestamp
	Until    int64 // Unix timestamp
}

func whereClause(opts QueryOptions) (string, []interface{}) {
	clause := " WHERE 1=1"
	args := []interface{}{}

	if opts.Action != "" {
		clause += " AND action = ?"
		args = append(args, opts.Action)
	}
	if opts.Username != "" {
		clause += " AND username = ?"
		args = append(args, opts.Username)
	}
	if opts.Since > 0 {
		clause += " AND timestamp >= ?"
		args = append(args, opts.Since)
	}
	if opts.Until > 0 {
		clause += " AND timestamp <= ?"
		args = append(args, opts.Until)
	}
	return clause, args
}

// Query retrieves audit log entries with filters, newest first
func Query(db *sql.DB, opts QueryOptions) ([]Entry, error) {
	if opts.Limit <= 0 {
		opts.Limit = constants.AuditDefaultQueryLimit
	}
	if opts.Limit > constants.AuditMaxQueryLimit {
		opts.Limit = constants.AuditMaxQueryLimit
	}

	clause, args := whereClause(opts)
	query := `SELECT id, timestamp, action, ip_address, username, details_json
              FROM audit_log` + clause + " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var detailsJSON sql.NullString

		err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.Action,
			&entry.IPAddress, &entry.Username, &detailsJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if detailsJSON.Valid {
			var details interface{}
			json.Unmarshal([]byte(detailsJSON.String), &details)
			entry.Details = details
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Count returns total number of audit entries matching filters
func Count(db *sql.DB, opts QueryOptions) (int64, error) {
	clause, args := whereClause(opts)

	var count int64
	err := db.QueryRow("SELECT COUNT(*) FROM audit_log"+clause, args...).Scan(&count)
	return count, err
}
