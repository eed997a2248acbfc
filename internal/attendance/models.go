package attendance

import (
	"fmt"
	"time"
)

// Status is the per-day attendance state of a student.
type Status string

const (
	StatusPresent    Status = "Present"
	StatusLate       Status = "Late"
	StatusSick       Status = "Sick"
	StatusPermission Status = "Permission"
	StatusAbsent     Status = "Absent"
)

// ParseStatus validates a status string from untrusted input.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPresent, StatusLate, StatusSick, StatusPermission, StatusAbsent:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown attendance status %q", s)
}

// Student is a registered student. At most one live credential binding
// exists at a time; Token is empty until one is issued.
type Student struct {
	ID                 string     `json:"id"`
	NIS                string     `json:"nis"`
	Name               string     `json:"name"`
	ClassName          string     `json:"class_name"`
	Token              string     `json:"-"`
	Nonce              string     `json:"-"`
	CredentialIssuedAt *time.Time `json:"credential_issued_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// HasCredential reports whether a live credential is bound to the student.
func (s Student) HasCredential() bool { return s.Token != "" }

// Record is one row of the attendance ledger. Day is the start of the civil
// day the record belongs to; the ledger holds at most one non-voided record
// per (student, day).
type Record struct {
	ID        string     `json:"id"`
	StudentID string     `json:"student_id"`
	ScannedAt time.Time  `json:"scanned_at"`
	Day       time.Time  `json:"-"`
	Status    Status     `json:"status"`
	Voided    bool       `json:"voided"`
	VoidedAt  *time.Time `json:"voided_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
