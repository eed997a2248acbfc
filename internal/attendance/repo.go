package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same repository
// code serves direct calls and transaction-bound batches.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists students and the attendance ledger in Postgres.
type Repository struct {
	db *sql.DB
	q  querier
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, q: db}
}

const studentCols = `id, nis, name, class_name, credential_token, credential_nonce, credential_issued_at, created_at`

func scanStudent(row interface{ Scan(...any) error }) (*Student, error) {
	var s Student
	var token, nonce sql.NullString
	var issuedAt sql.NullTime
	if err := row.Scan(&s.ID, &s.NIS, &s.Name, &s.ClassName, &token, &nonce, &issuedAt, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.Token = token.String
	s.Nonce = nonce.String
	if issuedAt.Valid {
		t := issuedAt.Time
		s.CredentialIssuedAt = &t
	}
	return &s, nil
}

// InsertStudent writes a new student row.
func (r *Repository) InsertStudent(ctx context.Context, s Student) (Student, error) {
	row := r.q.QueryRowContext(ctx, `
		INSERT INTO students (id, nis, name, class_name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, s.ID, s.NIS, s.Name, s.ClassName)
	if err := row.Scan(&s.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Student{}, ErrStudentExists
		}
		return Student{}, err
	}
	return s, nil
}

// FindStudentByID returns a student or nil when none matches.
func (r *Repository) FindStudentByID(ctx context.Context, id string) (*Student, error) {
	return scanStudent(r.q.QueryRowContext(ctx, `
		SELECT `+studentCols+` FROM students WHERE id = $1
	`, id))
}

// ListStudents returns students ordered by class then name.
func (r *Repository) ListStudents(ctx context.Context, limit, offset int) ([]Student, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+studentCols+` FROM students
		ORDER BY class_name, name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, *s)
	}
	return students, rows.Err()
}

// UpdateStudent overwrites the mutable fields of a student row.
func (r *Repository) UpdateStudent(ctx context.Context, s Student) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE students SET nis = $2, name = $3, class_name = $4 WHERE id = $1
	`, s.ID, s.NIS, s.Name, s.ClassName)
	if isUniqueViolation(err) {
		return ErrStudentExists
	}
	return err
}

// DeleteStudent removes a student; attendance rows cascade at the schema
// level so the ledger cleanup commits with the delete.
func (r *Repository) DeleteStudent(ctx context.Context, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// BindCredential stores an issued token, refusing when one is already bound.
func (r *Repository) BindCredential(ctx context.Context, id, token, nonce string, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE students
		SET credential_token = $2, credential_nonce = $3, credential_issued_at = $4
		WHERE id = $1 AND credential_token IS NULL
	`, id, token, nonce, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const recordCols = `id, student_id, scanned_at, day, status, voided, voided_at, created_at`

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var rec Record
	var voidedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.ScannedAt, &rec.Day, &rec.Status, &rec.Voided, &voidedAt, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if voidedAt.Valid {
		t := voidedAt.Time
		rec.VoidedAt = &t
	}
	return &rec, nil
}

// GetRecord returns a ledger row or nil.
func (r *Repository) GetRecord(ctx context.Context, id string) (*Record, error) {
	return scanRecord(r.q.QueryRowContext(ctx, `
		SELECT `+recordCols+` FROM attendance_records WHERE id = $1
	`, id))
}

// ActiveRecord returns the non-voided record for a student on a civil day,
// or nil. It matches on the day column so lookup and the partial unique
// index agree even when scanned_at carries an out-of-day correction time.
func (r *Repository) ActiveRecord(ctx context.Context, studentID string, day time.Time) (*Record, error) {
	return scanRecord(r.q.QueryRowContext(ctx, `
		SELECT `+recordCols+` FROM attendance_records
		WHERE student_id = $1 AND day = $2 AND NOT voided
		LIMIT 1
	`, studentID, day))
}

// InsertRecord writes a ledger row. The partial unique index turns a
// concurrent duplicate into ErrDuplicateRecord instead of a second row.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	row := r.q.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, student_id, scanned_at, day, status, voided)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (student_id, day) WHERE NOT voided DO NOTHING
		RETURNING created_at
	`, rec.ID, rec.StudentID, rec.ScannedAt, rec.Day, rec.Status)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return Record{}, ErrDuplicateRecord
		}
		return Record{}, err
	}
	return rec, nil
}

// OverwriteRecord replaces status and timestamp in place; identity and day
// binding stay as they are.
func (r *Repository) OverwriteRecord(ctx context.Context, id string, status Status, scannedAt time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE attendance_records SET status = $2, scanned_at = $3 WHERE id = $1
	`, id, status, scannedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// VoidRecord soft-deletes a record. The NOT voided guard makes it a
// compare-and-set, so two concurrent undos cannot both claim success.
func (r *Repository) VoidRecord(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE attendance_records SET voided = TRUE, voided_at = $2
		WHERE id = $1 AND NOT voided
	`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// WithinTx runs fn against a transaction-bound copy of the repository.
func (r *Repository) WithinTx(ctx context.Context, fn func(Store) error) error {
	if _, inTx := r.q.(*sql.Tx); inTx {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&Repository{db: r.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("batch commit: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
