package store

import (
	"context"
	"database/sql"
)

// schema is applied at startup; statements are idempotent. The partial
// unique index is what makes at-most-one non-voided record per (student,
// day) hold under concurrent scans of the same code.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		nis TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		class_name TEXT NOT NULL,
		credential_token TEXT,
		credential_nonce TEXT,
		credential_issued_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		scanned_at TIMESTAMPTZ NOT NULL,
		day DATE NOT NULL,
		status TEXT NOT NULL DEFAULT 'Present',
		voided BOOLEAN NOT NULL DEFAULT FALSE,
		voided_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS attendance_one_active_per_day
		ON attendance_records (student_id, day) WHERE NOT voided`,
	`CREATE INDEX IF NOT EXISTS attendance_records_scanned_at_idx
		ON attendance_records (scanned_at)`,
	`CREATE TABLE IF NOT EXISTS class_assignments (
		principal_id TEXT NOT NULL,
		class_name TEXT NOT NULL,
		PRIMARY KEY (principal_id, class_name)
	)`,
}

// EnsureSchema creates tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
