package credstore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// CurrentVersion is the current credential store schema version.
const CurrentVersion = 1

// OpenDB opens the SQLite database backing the credential store.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA wal_autocheckpoint = 1000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set wal autocheckpoint: %w", err)
	}

	return db, nil
}

// Migrate brings the database up to CurrentVersion, initializing it if
// schema_version does not yet exist.
func Migrate(db *sql.DB) error {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return initDB(db)
	}
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	version, err := schemaVersion(db)
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}
	if version == 0 {
		return initDB(db)
	}
	// CurrentVersion is 1; no migrations defined yet. Future schema bumps
	// add version-gated ALTER statements here, in the style of a runMigrations step.
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

func initDB(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			identity    TEXT PRIMARY KEY,
			bcrypt_hash TEXT,
			digest_ha1  TEXT,
			realm       TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create credentials table: %w", err)
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_credentials_realm ON credentials(realm)`)
	if err != nil {
		return fmt.Errorf("create idx_credentials_realm: %w", err)
	}

	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	return tx.Commit()
}
