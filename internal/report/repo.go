package report

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/attendance"
)

// Repository runs the reporting reads against Postgres. It only ever
// selects; all writes go through the attendance repository.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// classClause appends an IN (...) filter for the scoped classes. A nil
// slice adds nothing.
func classClause(column string, classes []string, args []any) (string, []any) {
	if classes == nil {
		return "", args
	}
	placeholders := make([]string, len(classes))
	for i, c := range classes {
		args = append(args, c)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	return fmt.Sprintf(" AND %s IN (%s)", column, strings.Join(placeholders, ",")), args
}

// StatusCounts aggregates non-voided records per student within a range.
func (r *Repository) StatusCounts(ctx context.Context, from, to time.Time, classes []string) ([]StatusCounts, error) {
	args := []any{from, to}
	clause, args := classClause("s.class_name", classes, args)

	rows, err := r.db.QueryContext(ctx, `
		SELECT s.nis, s.name, s.class_name,
			SUM(CASE WHEN a.status = 'Present' THEN 1 ELSE 0 END),
			SUM(CASE WHEN a.status = 'Late' THEN 1 ELSE 0 END),
			SUM(CASE WHEN a.status = 'Sick' THEN 1 ELSE 0 END),
			SUM(CASE WHEN a.status = 'Permission' THEN 1 ELSE 0 END),
			SUM(CASE WHEN a.status = 'Absent' THEN 1 ELSE 0 END)
		FROM students s
		JOIN attendance_records a ON a.student_id = s.id
		WHERE a.scanned_at >= $1 AND a.scanned_at < $2 AND NOT a.voided`+clause+`
		GROUP BY s.id, s.nis, s.name, s.class_name
		ORDER BY s.class_name, s.name
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusCounts
	for rows.Next() {
		var c StatusCounts
		if err := rows.Scan(&c.StudentNIS, &c.StudentName, &c.ClassName,
			&c.Present, &c.Late, &c.Sick, &c.Permission, &c.Absent); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountActiveRecords counts non-voided records in a time range.
func (r *Repository) CountActiveRecords(ctx context.Context, from, to time.Time, classes []string) (int, error) {
	args := []any{from, to}
	clause, args := classClause("s.class_name", classes, args)

	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(a.id)
		FROM attendance_records a
		JOIN students s ON s.id = a.student_id
		WHERE a.scanned_at >= $1 AND a.scanned_at < $2 AND NOT a.voided`+clause,
		args...).Scan(&n)
	return n, err
}

// CountStudents counts registered students, optionally per class set.
func (r *Repository) CountStudents(ctx context.Context, classes []string) (int, error) {
	args := []any{}
	clause, args := classClause("class_name", classes, args)
	query := `SELECT COUNT(id) FROM students WHERE TRUE` + clause

	var n int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// ListClasses returns the distinct class names in the registry.
func (r *Repository) ListClasses(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT class_name FROM students ORDER BY class_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// Roster lists a class's students with their non-voided record for the day,
// when one exists.
func (r *Repository) Roster(ctx context.Context, className string, dayStart, dayEnd time.Time) ([]RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.nis, s.name, s.class_name, a.id, a.status, a.scanned_at
		FROM students s
		LEFT JOIN attendance_records a
			ON a.student_id = s.id
			AND a.scanned_at >= $2 AND a.scanned_at < $3
			AND NOT a.voided
		WHERE s.class_name = $1
		ORDER BY s.name
	`, className, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RosterEntry
	for rows.Next() {
		var e RosterEntry
		var recordID, status sql.NullString
		var scannedAt sql.NullTime
		if err := rows.Scan(&e.StudentID, &e.NIS, &e.Name, &e.ClassName, &recordID, &status, &scannedAt); err != nil {
			return nil, err
		}
		if recordID.Valid {
			id := recordID.String
			e.RecordID = &id
		}
		if status.Valid {
			st := attendance.Status(status.String)
			e.Status = &st
		}
		if scannedAt.Valid {
			t := scannedAt.Time
			e.ScannedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// History lists ledger rows joined with students, newest first.
func (r *Repository) History(ctx context.Context, f HistoryFilter) ([]HistoryEntry, error) {
	query := `
		SELECT a.id, a.student_id, s.name, s.class_name, a.scanned_at, a.status, a.voided, a.voided_at
		FROM attendance_records a
		JOIN students s ON s.id = a.student_id
		WHERE TRUE`
	args := []any{}

	clause, args := classClause("s.class_name", f.Classes, args)
	query += clause
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		query += fmt.Sprintf(" AND a.student_id = $%d", len(args))
	}
	if !f.DayStart.IsZero() {
		args = append(args, f.DayStart, f.DayEnd)
		query += fmt.Sprintf(" AND a.scanned_at >= $%d AND a.scanned_at < $%d", len(args)-1, len(args))
	}

	limit, offset := f.Limit, f.Offset
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY a.scanned_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var voidedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.StudentID, &e.StudentName, &e.ClassName, &e.ScannedAt, &e.Status, &e.Voided, &voidedAt); err != nil {
			return nil, err
		}
		if voidedAt.Valid {
			t := voidedAt.Time
			e.VoidedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
