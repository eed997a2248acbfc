package scope

import (
	"context"
	"database/sql"
)

// Repository persists class assignments in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListAssignedClasses returns the class names assigned to a principal.
func (r *Repository) ListAssignedClasses(ctx context.Context, principalID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT class_name FROM class_assignments
		WHERE principal_id = $1
		ORDER BY class_name
	`, principalID)
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

// ReplaceAssignments swaps a principal's assignments wholesale in one
// transaction, so a failed write never leaves a half-replaced set.
func (r *Repository) ReplaceAssignments(ctx context.Context, principalID string, classes []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM class_assignments WHERE principal_id = $1`, principalID); err != nil {
		return err
	}
	for _, c := range classes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO class_assignments (principal_id, class_name)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, principalID, c); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteAssignments removes every assignment owned by a principal; called
// when the principal itself is deleted upstream.
func (r *Repository) DeleteAssignments(ctx context.Context, principalID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM class_assignments WHERE principal_id = $1`, principalID)
	return err
}
