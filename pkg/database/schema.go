package database

import (
	"database/sql"
	"fmt"
)

// Schema for the two tables the monitor owns. exams is read once at
// monitor start; violation_archive is append-only during monitoring.
const schema = `
CREATE TABLE IF NOT EXISTS exams (
	exam_id         TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	total_questions INTEGER NOT NULL CHECK (total_questions >= 0)
);

CREATE TABLE IF NOT EXISTS violation_archive (
	id          TEXT PRIMARY KEY,
	exam_id     TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	student_id  TEXT NOT NULL,
	severity    TEXT NOT NULL,
	reason      TEXT NOT NULL,
	occurred_at DATETIME NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_violation_archive_exam
	ON violation_archive(exam_id, occurred_at);
`

// EnsureSchema creates the monitor's tables if they do not exist.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// ValidateTablesExist verifies the required tables are present, for
// deployment checks independent of EnsureSchema.
func ValidateTablesExist(db *sql.DB) error {
	for _, table := range []string{"exams", "violation_archive"} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("required table %s does not exist", table)
		}
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
	}
	return nil
}
