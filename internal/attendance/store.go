package attendance

import (
	"context"
	"time"
)

// Store is the persistence surface the reconciler and the student registry
// run against. Lookups return nil (not an error) when nothing matches, so
// callers decide what absence means for their operation.
type Store interface {
	InsertStudent(ctx context.Context, s Student) (Student, error)
	FindStudentByID(ctx context.Context, id string) (*Student, error)
	ListStudents(ctx context.Context, limit, offset int) ([]Student, error)
	UpdateStudent(ctx context.Context, s Student) error
	DeleteStudent(ctx context.Context, id string) (bool, error)

	// BindCredential stores the issued token on the student row; it reports
	// false without writing when a credential is already bound.
	BindCredential(ctx context.Context, id, token, nonce string, at time.Time) (bool, error)

	GetRecord(ctx context.Context, id string) (*Record, error)
	// ActiveRecord returns the non-voided record keyed to the given civil
	// day, matching on the same day binding the uniqueness constraint uses.
	ActiveRecord(ctx context.Context, studentID string, day time.Time) (*Record, error)
	// InsertRecord returns ErrDuplicateRecord when a non-voided record for
	// the same (student, day) already exists.
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	OverwriteRecord(ctx context.Context, id string, status Status, scannedAt time.Time) error
	// VoidRecord flips the soft-delete flag; it reports false without
	// writing when the record is missing or already voided.
	VoidRecord(ctx context.Context, id string, at time.Time) (bool, error)

	// WithinTx runs fn against a transaction-bound store. Everything fn
	// writes commits or rolls back as a unit.
	WithinTx(ctx context.Context, fn func(Store) error) error
}
