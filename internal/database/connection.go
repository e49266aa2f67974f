package database

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// OpenDatabase opens a SQLite database at the given path and applies pragmas.
// Uses _txlock=immediate so transactions acquire write locks up front,
// serializing read-then-write sequences like rate-limit counter updates.
func OpenDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate")
	if err != nil {
		return nil, err
	}

	if err := ApplyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// InitCoreDB opens or creates the core database and initializes the schema.
func InitCoreDB(path string) (*sql.DB, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(GetCoreSchema()); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrateCoreDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// migrateCoreDB applies forward-compatible migrations to existing databases.
// Each migration is idempotent (safe to run multiple times).
func migrateCoreDB(db *sql.DB) error {
	// Migration: add totp_secret column (MFA added after initial release)
	_, err := db.Exec(`ALTER TABLE users ADD COLUMN totp_secret TEXT`)
	if err != nil && !strings.Contains(err.Error(), "duplicate column") {
		return err
	}
	return nil
}
