package database

import (
	"database/sql"
	"fmt"
)

// Schema statements in apply order. Idempotent so startup can always run
// the full list; ALTERs for future columns go through addColumnIfMissing.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id         TEXT PRIMARY KEY,
		classroom_code     TEXT,
		teacher_id         TEXT NOT NULL,
		is_active          INTEGER NOT NULL DEFAULT 1,
		students_count     INTEGER NOT NULL DEFAULT 0,
		total_translations INTEGER NOT NULL DEFAULT 0,
		last_activity_at   DATETIME NOT NULL,
		start_time         DATETIME NOT NULL,
		end_time           DATETIME,
		quality            TEXT NOT NULL DEFAULT 'unknown',
		quality_reason     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_teacher_active
		ON sessions(teacher_id, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_active
		ON sessions(is_active)`,
	`CREATE TABLE IF NOT EXISTS transcripts (
		id            TEXT PRIMARY KEY,
		session_id    TEXT NOT NULL,
		text          TEXT NOT NULL,
		language_code TEXT NOT NULL,
		is_final      INTEGER NOT NULL DEFAULT 0,
		timestamp     DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(session_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcripts_session
		ON transcripts(session_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS translations (
		id              TEXT PRIMARY KEY,
		session_id      TEXT NOT NULL,
		source_text     TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		source_language TEXT NOT NULL,
		target_language TEXT NOT NULL,
		timestamp       DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(session_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_translations_session
		ON translations(session_id, timestamp)`,
}

// ApplySchema creates all tables and indexes required by the storage layer.
func ApplySchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

// ValidateSchema verifies that all required tables exist. Used by health
// checks and deployment verification.
func ValidateSchema(db *sql.DB) error {
	required := []string{"sessions", "transcripts", "translations"}
	for _, table := range required {
		exists, err := tableExists(db, table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
	if err := db.QueryRow(query, name).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
