package attendance

import (
	"context"
	"errors"
	"testing"
)

func TestCreateStudentDuplicateNIS(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	if _, err := f.svc.CreateStudent(ctx, "1001", "Andi", "10A"); err != nil {
		t.Fatalf("CreateStudent() error = %v", err)
	}
	if _, err := f.svc.CreateStudent(ctx, "1001", "Someone Else", "10B"); !errors.Is(err, ErrStudentExists) {
		t.Errorf("CreateStudent() error = %v, want ErrStudentExists", err)
	}
}

func TestIssueCredentialOnce(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	student, err := f.svc.CreateStudent(ctx, "1001", "Andi", "10A")
	if err != nil {
		t.Fatalf("CreateStudent() error = %v", err)
	}

	issued, err := f.svc.IssueCredential(ctx, student.ID)
	if err != nil {
		t.Fatalf("IssueCredential() error = %v", err)
	}
	if issued.Token == "" || issued.Nonce == "" || issued.CredentialIssuedAt == nil {
		t.Errorf("incomplete binding: %+v", issued)
	}

	// The issued token authenticates as this student.
	cred, err := f.codec.Verify(issued.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if cred.StudentID != student.ID {
		t.Errorf("token subject = %q, want %q", cred.StudentID, student.ID)
	}
	if cred.Nonce != issued.Nonce {
		t.Errorf("token nonce = %q, want stored %q", cred.Nonce, issued.Nonce)
	}

	// Re-issuance is refused while the binding lives.
	if _, err := f.svc.IssueCredential(ctx, student.ID); !errors.Is(err, ErrCredentialExists) {
		t.Errorf("second IssueCredential() error = %v, want ErrCredentialExists", err)
	}
}

func TestIssueCredentialUnknownStudent(t *testing.T) {
	f := newFixture(t, 0)
	if _, err := f.svc.IssueCredential(context.Background(), "ghost"); !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("IssueCredential() error = %v, want ErrStudentNotFound", err)
	}
}

func TestUpdateStudentKeepsUnsetFields(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	student, err := f.svc.CreateStudent(ctx, "1001", "Andi", "10A")
	if err != nil {
		t.Fatalf("CreateStudent() error = %v", err)
	}

	updated, err := f.svc.UpdateStudent(ctx, student.ID, "", "", "11A")
	if err != nil {
		t.Fatalf("UpdateStudent() error = %v", err)
	}
	if updated.NIS != "1001" || updated.Name != "Andi" || updated.ClassName != "11A" {
		t.Errorf("UpdateStudent() = %+v, want only class changed", updated)
	}
}

func TestDeleteStudentCascadesLedger(t *testing.T) {
	f := newFixture(t, 0)
	student, token := f.enroll(t, "1001", "Andi", "10A")
	ctx := context.Background()

	res, err := f.svc.Scan(ctx, teacher, token)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if err := f.svc.DeleteStudent(ctx, student.ID); err != nil {
		t.Fatalf("DeleteStudent() error = %v", err)
	}
	if rec, _ := f.store.GetRecord(ctx, res.Record.ID); rec != nil {
		t.Error("attendance record survived student deletion")
	}
	if err := f.svc.DeleteStudent(ctx, student.ID); !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("second DeleteStudent() error = %v, want ErrStudentNotFound", err)
	}
}
