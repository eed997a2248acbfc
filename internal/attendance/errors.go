package attendance

import "errors"

var (
	// ErrStudentNotFound covers both unknown student ids and tokens whose
	// subject no longer exists; the scan boundary reports it the same way as
	// a bad token so identifier validity does not leak.
	ErrStudentNotFound = errors.New("student not found")
	// ErrStudentExists means the NIS is already registered.
	ErrStudentExists = errors.New("student with this NIS already exists")
	// ErrCredentialExists means the student already holds a live credential;
	// re-issuance is refused to prevent silent credential churn.
	ErrCredentialExists = errors.New("credential already issued for this student")
	// ErrAccessDenied means the principal's scope does not cover the class.
	ErrAccessDenied = errors.New("access denied to class")
	// ErrRecordNotFound means no attendance record has that id.
	ErrRecordNotFound = errors.New("attendance record not found")
	// ErrAlreadyVoided means the record was undone before.
	ErrAlreadyVoided = errors.New("attendance already undone")
	// ErrUndoWindowExpired means the undo grace window has passed; changing
	// the record now requires the batch-correction path.
	ErrUndoWindowExpired = errors.New("undo period expired")
	// ErrDuplicateRecord is returned by stores when an insert loses the race
	// against another non-voided record for the same (student, day).
	ErrDuplicateRecord = errors.New("active record already exists for this day")
)
