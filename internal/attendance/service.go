package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/clock"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/credential"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/scope"
)

// Service reconciles scans, undos, and batch corrections into the daily
// attendance ledger. Every operation resolves the caller's scope before
// touching a student and computes its civil-day window exactly once.
type Service struct {
	codec      *credential.Codec
	store      Store
	scopes     *scope.Resolver
	days       *clock.Policy
	undoWindow time.Duration
}

// NewService creates the reconciler.
func NewService(codec *credential.Codec, store Store, scopes *scope.Resolver, days *clock.Policy, undoWindow time.Duration) *Service {
	if undoWindow <= 0 {
		undoWindow = 10 * time.Second
	}
	return &Service{codec: codec, store: store, scopes: scopes, days: days, undoWindow: undoWindow}
}

// ScanResult is the outcome of a scan. AlreadyRecorded is not a failure:
// the student's code was scanned twice the same day and Record carries the
// existing row.
type ScanResult struct {
	Student         Student
	Record          Record
	AlreadyRecorded bool
}

// Scan verifies a token, authorizes the caller, and records the student as
// present for today. A second scan of the same code on the same day is
// idempotent and returns the existing record untouched.
func (s *Service) Scan(ctx context.Context, p scope.Principal, token string) (ScanResult, error) {
	cred, err := s.codec.Verify(token)
	if err != nil {
		return ScanResult{}, err
	}

	student, err := s.store.FindStudentByID(ctx, cred.StudentID)
	if err != nil {
		return ScanResult{}, err
	}
	if student == nil {
		return ScanResult{}, ErrStudentNotFound
	}

	sc, err := s.scopes.Resolve(ctx, p)
	if err != nil {
		return ScanResult{}, err
	}
	if !sc.Allows(student.ClassName) {
		return ScanResult{}, fmt.Errorf("%w %s", ErrAccessDenied, student.ClassName)
	}

	now := s.days.Now()
	dayStart, _ := s.days.DayWindow(now)

	existing, err := s.store.ActiveRecord(ctx, student.ID, dayStart)
	if err != nil {
		return ScanResult{}, err
	}
	if existing != nil {
		return ScanResult{Student: *student, Record: *existing, AlreadyRecorded: true}, nil
	}

	rec, err := s.store.InsertRecord(ctx, Record{
		ID:        uuid.NewString(),
		StudentID: student.ID,
		ScannedAt: now,
		Day:       dayStart,
		Status:    StatusPresent,
	})
	if errors.Is(err, ErrDuplicateRecord) {
		// Lost the insert race against a concurrent scan; the winner's row
		// is the authoritative one.
		winner, ferr := s.store.ActiveRecord(ctx, student.ID, dayStart)
		if ferr != nil {
			return ScanResult{}, ferr
		}
		if winner != nil {
			return ScanResult{Student: *student, Record: *winner, AlreadyRecorded: true}, nil
		}
		return ScanResult{}, err
	}
	if err != nil {
		return ScanResult{}, err
	}
	return ScanResult{Student: *student, Record: rec}, nil
}

// Undo voids a record scanned moments ago. It exists for immediate mis-scan
// correction only; past the grace window the record is immutable through
// this path and history changes go through BatchCorrect.
func (s *Service) Undo(ctx context.Context, p scope.Principal, recordID string) (Record, error) {
	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{}, ErrRecordNotFound
	}
	if rec.Voided {
		return Record{}, ErrAlreadyVoided
	}

	student, err := s.store.FindStudentByID(ctx, rec.StudentID)
	if err != nil {
		return Record{}, err
	}
	if student == nil {
		return Record{}, ErrStudentNotFound
	}

	sc, err := s.scopes.Resolve(ctx, p)
	if err != nil {
		return Record{}, err
	}
	if !sc.Allows(student.ClassName) {
		return Record{}, fmt.Errorf("%w %s", ErrAccessDenied, student.ClassName)
	}

	now := s.days.Now()
	if now.Sub(rec.ScannedAt) > s.undoWindow {
		return Record{}, ErrUndoWindowExpired
	}

	ok, err := s.store.VoidRecord(ctx, rec.ID, now)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrAlreadyVoided
	}

	rec.Voided = true
	rec.VoidedAt = &now
	return *rec, nil
}

// BatchItem is one correction in a batch: set a student's status for the
// batch day, optionally with an explicit scan time.
type BatchItem struct {
	StudentID string
	Status    Status
	// ScanTime is an optional RFC 3339 timestamp. Unparseable values fall
	// back to the current instant rather than failing the item.
	ScanTime string
}

// BatchSummary reports what a batch did. Skipped lists the ids of items
// that matched no student or fell outside the caller's scope.
type BatchSummary struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped []string `json:"skipped"`
}

// BatchCorrect applies bulk corrections for one civil day inside a single
// transaction. Items are processed independently: an unknown or
// out-of-scope student skips that item without aborting the rest, while a
// storage failure rolls the whole batch back. Re-running the same batch is
// idempotent; existing records are overwritten in place, not appended.
func (s *Service) BatchCorrect(ctx context.Context, p scope.Principal, day string, items []BatchItem) (BatchSummary, error) {
	dayStart, err := s.days.ParseDay(day)
	if err != nil {
		return BatchSummary{}, err
	}

	sc, err := s.scopes.Resolve(ctx, p)
	if err != nil {
		return BatchSummary{}, err
	}

	summary := BatchSummary{Skipped: []string{}}
	err = s.store.WithinTx(ctx, func(tx Store) error {
		for _, item := range items {
			student, err := tx.FindStudentByID(ctx, item.StudentID)
			if err != nil {
				return err
			}
			if student == nil || !sc.Allows(student.ClassName) {
				summary.Skipped = append(summary.Skipped, item.StudentID)
				continue
			}

			scannedAt := s.days.Now()
			if item.ScanTime != "" {
				if t, err := s.days.ParseTime(item.ScanTime); err == nil {
					scannedAt = t
				}
			}

			existing, err := tx.ActiveRecord(ctx, student.ID, dayStart)
			if err != nil {
				return err
			}
			if existing != nil {
				if err := tx.OverwriteRecord(ctx, existing.ID, item.Status, scannedAt); err != nil {
					return err
				}
				summary.Updated++
				continue
			}

			if _, err := tx.InsertRecord(ctx, Record{
				ID:        uuid.NewString(),
				StudentID: student.ID,
				ScannedAt: scannedAt,
				Day:       dayStart,
				Status:    item.Status,
			}); err != nil {
				return err
			}
			summary.Created++
		}
		return nil
	})
	if err != nil {
		return BatchSummary{}, err
	}
	return summary, nil
}
