package attendance

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Student registry operations. These live on the same service as the
// reconciler because issuance binds credentials to the rows scans resolve
// against.

// CreateStudent registers a student. The NIS must be unique.
func (s *Service) CreateStudent(ctx context.Context, nis, name, className string) (Student, error) {
	return s.store.InsertStudent(ctx, Student{
		ID:        uuid.NewString(),
		NIS:       strings.TrimSpace(nis),
		Name:      strings.TrimSpace(name),
		ClassName: strings.TrimSpace(className),
	})
}

// GetStudent fetches a student by id.
func (s *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	student, err := s.store.FindStudentByID(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if student == nil {
		return Student{}, ErrStudentNotFound
	}
	return *student, nil
}

// ListStudents returns a page of students.
func (s *Service) ListStudents(ctx context.Context, limit, offset int) ([]Student, error) {
	return s.store.ListStudents(ctx, limit, offset)
}

// UpdateStudent overwrites the mutable student fields. Empty inputs keep
// the current value.
func (s *Service) UpdateStudent(ctx context.Context, id, nis, name, className string) (Student, error) {
	student, err := s.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if v := strings.TrimSpace(nis); v != "" {
		student.NIS = v
	}
	if v := strings.TrimSpace(name); v != "" {
		student.Name = v
	}
	if v := strings.TrimSpace(className); v != "" {
		student.ClassName = v
	}
	if err := s.store.UpdateStudent(ctx, student); err != nil {
		return Student{}, err
	}
	return student, nil
}

// DeleteStudent removes a student; the ledger rows it owns go with it in
// the same transaction.
func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	ok, err := s.store.DeleteStudent(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStudentNotFound
	}
	return nil
}

// IssueCredential signs a fresh token for the student and binds it to the
// row. Issuance is refused while a live credential exists so a printed code
// is never silently superseded.
func (s *Service) IssueCredential(ctx context.Context, studentID string) (Student, error) {
	student, err := s.GetStudent(ctx, studentID)
	if err != nil {
		return Student{}, err
	}
	if student.HasCredential() {
		return Student{}, ErrCredentialExists
	}

	token, nonce, err := s.codec.Issue(student.ID)
	if err != nil {
		return Student{}, err
	}

	now := s.days.Now()
	ok, err := s.store.BindCredential(ctx, student.ID, token, nonce, now)
	if err != nil {
		return Student{}, err
	}
	if !ok {
		return Student{}, ErrCredentialExists
	}

	student.Token = token
	student.Nonce = nonce
	student.CredentialIssuedAt = &now
	return student, nil
}
