package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/clock"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/credential"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/scope"
)

// tickClock is a settable clock so tests can sit on either side of the undo
// window and the midnight boundary.
type tickClock struct{ now time.Time }

func (c *tickClock) Now() time.Time          { return c.now }
func (c *tickClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type memAssignments map[string][]string

func (m memAssignments) ListAssignedClasses(_ context.Context, principalID string) ([]string, error) {
	return m[principalID], nil
}

var (
	admin   = scope.Principal{ID: "admin-1", Role: scope.RoleAdmin}
	teacher = scope.Principal{ID: "teacher-1", Role: scope.RoleTeacher}
)

type fixture struct {
	svc   *Service
	store *memStore
	clock *tickClock
	codec *credential.Codec
}

func newFixture(t *testing.T, window time.Duration) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	tc := &tickClock{now: time.Date(2024, 3, 1, 7, 0, 0, 0, loc)}
	codec := credential.NewCodec("test-secret")
	store := newMemStore()
	resolver := scope.NewResolver(memAssignments{"teacher-1": {"10A"}})
	days := clock.NewFixed(tc, loc)

	return &fixture{
		svc:   NewService(codec, store, resolver, days, window),
		store: store,
		clock: tc,
		codec: codec,
	}
}

// enroll registers a student and issues a credential, returning the token.
func (f *fixture) enroll(t *testing.T, nis, name, class string) (Student, string) {
	t.Helper()
	ctx := context.Background()
	student, err := f.svc.CreateStudent(ctx, nis, name, class)
	if err != nil {
		t.Fatalf("CreateStudent() error = %v", err)
	}
	issued, err := f.svc.IssueCredential(ctx, student.ID)
	if err != nil {
		t.Fatalf("IssueCredential() error = %v", err)
	}
	return issued, issued.Token
}

func TestScanCreatesPresentRecord(t *testing.T) {
	f := newFixture(t, 0)
	student, token := f.enroll(t, "1001", "Andi", "10A")

	res, err := f.svc.Scan(context.Background(), teacher, token)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if res.AlreadyRecorded {
		t.Error("first scan marked AlreadyRecorded")
	}
	if res.Record.Status != StatusPresent {
		t.Errorf("status = %q, want Present", res.Record.Status)
	}
	if res.Record.StudentID != student.ID {
		t.Errorf("record student = %q, want %q", res.Record.StudentID, student.ID)
	}
	if !res.Record.ScannedAt.Equal(f.clock.now) {
		t.Errorf("scanned at = %v, want %v", res.Record.ScannedAt, f.clock.now)
	}
}

func TestScanIdempotentSameDay(t *testing.T) {
	f := newFixture(t, 0)
	student, token := f.enroll(t, "1001", "Andi", "10A")
	ctx := context.Background()

	first, err := f.svc.Scan(ctx, teacher, token)
	if err != nil {
		t.Fatalf("first Scan() error = %v", err)
	}

	f.clock.advance(3 * time.Hour)
	second, err := f.svc.Scan(ctx, teacher, token)
	if err != nil {
		t.Fatalf("second Scan() error = %v", err)
	}
	if !second.AlreadyRecorded {
		t.Error("second scan not marked AlreadyRecorded")
	}
	if second.Record.ID != first.Record.ID {
		t.Errorf("second scan record id = %q, want %q", second.Record.ID, first.Record.ID)
	}
	if got := f.store.activeCount(student.ID); got != 1 {
		t.Errorf("active records = %d, want 1", got)
	}
}

func TestScanNextDayCreatesNewRecord(t *testing.T) {
	f := newFixture(t, 0)
	_, token := f.enroll(t, "1001", "Andi", "10A")
	ctx := context.Background()

	first, err := f.svc.Scan(ctx, teacher, token)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	f.clock.advance(24 * time.Hour)
	second, err := f.svc.Scan(ctx, teacher, token)
	if err != nil {
		t.Fatalf("next-day Scan() error = %v", err)
	}
	if second.AlreadyRecorded {
		t.Error("next-day scan marked AlreadyRecorded")
	}
	if second.Record.ID == first.Record.ID {
		t.Error("next-day scan reused the previous record")
	}
}

func TestScanRejectsBadTokens(t *testing.T) {
	f := newFixture(t, 0)
	f.enroll(t, "1001", "Andi", "10A")

	otherCodec := credential.NewCodec("other-secret")
	forged, _, _ := otherCodec.Issue("1001")

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"garbage", "not-a-token", credential.ErrMalformedToken},
		{"forged signature", forged, credential.ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Scan(context.Background(), teacher, tt.token); !errors.Is(err, tt.wantErr) {
				t.Errorf("Scan() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestScanUnknownStudent(t *testing.T) {
	f := newFixture(t, 0)
	// Valid signature over a student id that was never registered.
	token, _, err := f.codec.Issue("ghost")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := f.svc.Scan(context.Background(), admin, token); !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("Scan() error = %v, want ErrStudentNotFound", err)
	}
}

func TestScanScopeEnforcement(t *testing.T) {
	f := newFixture(t, 0)
	student, token := f.enroll(t, "2001", "Budi", "10B")
	ctx := context.Background()

	// teacher-1 is scoped to 10A only.
	if _, err := f.svc.Scan(ctx, teacher, token); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Scan() error = %v, want ErrAccessDenied", err)
	}
	if got := f.store.activeCount(student.ID); got != 0 {
		t.Errorf("denied scan mutated the ledger: %d records", got)
	}

	if _, err := f.svc.Scan(ctx, admin, token); err != nil {
		t.Errorf("admin Scan() error = %v", err)
	}
}

func TestScanUnassignedTeacherSeesNothing(t *testing.T) {
	f := newFixture(t, 0)
	_, token := f.enroll(t, "1001", "Andi", "10A")

	nobody := scope.Principal{ID: "teacher-unassigned", Role: scope.RoleTeacher}
	if _, err := f.svc.Scan(context.Background(), nobody, token); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Scan() error = %v, want ErrAccessDenied", err)
	}
}

func TestUndoWithinWindow(t *testing.T) {
	f := newFixture(t, 10*time.Second)
	_, token := f.enroll(t, "1001", "Andi", "10A")
	ctx := context.Background()

	res, err := f.svc.Scan(ctx, teacher, token)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	f.clock.advance(9900 * time.Millisecond)
	undone, err := f.svc.Undo(ctx, teacher, res.Record.ID)
	if err != nil {
		t.Fatalf("Undo() at 9.9s error = %v", err)
	}
	if !undone.Voided || undone.VoidedAt == nil {
		t.Error("record not voided")
	}
}

func TestUndoWindowBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"just inside", 9900 * time.Millisecond, nil},
		{"exactly at window", 10 * time.Second, nil},
		{"just outside", 10100 * time.Millisecond, ErrUndoWindowExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10*time.Second)
			_, token := f.enroll(t, "1001", "Andi", "10A")
			ctx := context.Background()

			res, err := f.svc.Scan(ctx, teacher, token)
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}

			f.clock.advance(tt.elapsed)
			_, err = f.svc.Undo(ctx, teacher, res.Record.ID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Undo() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUndoFailures(t *testing.T) {
	f := newFixture(t, 10*time.Second)
	_, token := f.enroll(t, "1001", "Andi", "10A")
	ctx := context.Background()

	res, err := f.svc.Scan(ctx, teacher, token)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if _, err := f.svc.Undo(ctx, teacher, "no-such-record"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Undo(missing) error = %v, want ErrRecordNotFound", err)
	}

	outsider := scope.Principal{ID: "teacher-unassigned", Role: scope.RoleTeacher}
	if _, err := f.svc.Undo(ctx, outsider, res.Record.ID); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Undo(out of scope) error = %v, want ErrAccessDenied", err)
	}

	if _, err := f.svc.Undo(ctx, teacher, res.Record.ID); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if _, err := f.svc.Undo(ctx, teacher, res.Record.ID); !errors.Is(err, ErrAlreadyVoided) {
		t.Errorf("Undo(again) error = %v, want ErrAlreadyVoided", err)
	}
}

// Mirrors the scan → undo → rescan flow of a mis-scan at the school gate.
func TestScanAfterUndoCreatesFreshRecord(t *testing.T) {
	f := newFixture(t, 10*time.Second)
	student, token := f.enroll(t, "1001", "Andi", "10A")
	ctx := context.Background()

	first, err := f.svc.Scan(ctx, teacher, token)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	f.clock.advance(9 * time.Second)
	if _, err := f.svc.Undo(ctx, teacher, first.Record.ID); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}

	second, err := f.svc.Scan(ctx, teacher, token)
	if err != nil {
		t.Fatalf("rescan error = %v", err)
	}
	if second.AlreadyRecorded {
		t.Error("rescan after undo marked AlreadyRecorded")
	}
	if second.Record.ID == first.Record.ID {
		t.Error("rescan reused the voided record")
	}
	if got := f.store.activeCount(student.ID); got != 1 {
		t.Errorf("active records = %d, want 1", got)
	}
}

func TestScanInsertRaceReturnsWinner(t *testing.T) {
	f := newFixture(t, 0)
	student, token := f.enroll(t, "1001", "Andi", "10A")
	ctx := context.Background()

	// Simulate another scanner winning between the existence check and the
	// insert: seed the winning row directly under the store's uniqueness
	// rule, then scan.
	dayStart, _ := f.svc.days.DayWindow(f.clock.now)
	winner, err := f.store.InsertRecord(ctx, Record{
		ID: "winner", StudentID: student.ID, ScannedAt: f.clock.now, Day: dayStart, Status: StatusPresent,
	})
	if err != nil {
		t.Fatalf("seed insert error = %v", err)
	}

	res, err := f.svc.Scan(ctx, teacher, token)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !res.AlreadyRecorded || res.Record.ID != winner.ID {
		t.Errorf("scan result = %+v, want AlreadyRecorded with record %q", res, winner.ID)
	}
}

func TestBatchCorrectIdempotent(t *testing.T) {
	f := newFixture(t, 0)
	a, _ := f.enroll(t, "1001", "Andi", "10A")
	b, _ := f.enroll(t, "1002", "Citra", "10A")
	ctx := context.Background()

	items := []BatchItem{
		{StudentID: a.ID, Status: StatusSick},
		{StudentID: b.ID, Status: StatusPresent},
	}

	first, err := f.svc.BatchCorrect(ctx, teacher, "2024-03-01", items)
	if err != nil {
		t.Fatalf("BatchCorrect() error = %v", err)
	}
	if first.Created != 2 || first.Updated != 0 {
		t.Errorf("first run created=%d updated=%d, want 2/0", first.Created, first.Updated)
	}

	second, err := f.svc.BatchCorrect(ctx, teacher, "2024-03-01", items)
	if err != nil {
		t.Fatalf("second BatchCorrect() error = %v", err)
	}
	if second.Created != 0 || second.Updated != 2 {
		t.Errorf("second run created=%d updated=%d, want 0/2", second.Created, second.Updated)
	}
	if got := f.store.activeCount(a.ID) + f.store.activeCount(b.ID); got != 2 {
		t.Errorf("active records = %d, want 2", got)
	}
}

func TestBatchCorrectOutOfDayScanTime(t *testing.T) {
	f := newFixture(t, 0)
	a, token := f.enroll(t, "1001", "Andi", "10A")
	ctx := context.Background()

	// A correction can legitimately carry a timestamp outside the batch day,
	// e.g. backfilling an excused absence noted the evening before. The row
	// stays keyed to the batch day regardless of the timestamp.
	items := []BatchItem{
		{StudentID: a.ID, Status: StatusPermission, ScanTime: "2024-02-28T19:00:00+07:00"},
	}

	first, err := f.svc.BatchCorrect(ctx, teacher, "2024-03-01", items)
	if err != nil {
		t.Fatalf("BatchCorrect() error = %v", err)
	}
	if first.Created != 1 || first.Updated != 0 {
		t.Errorf("first run created=%d updated=%d, want 1/0", first.Created, first.Updated)
	}

	second, err := f.svc.BatchCorrect(ctx, teacher, "2024-03-01", items)
	if err != nil {
		t.Fatalf("second BatchCorrect() error = %v", err)
	}
	if second.Created != 0 || second.Updated != 1 {
		t.Errorf("second run created=%d updated=%d, want 0/1", second.Created, second.Updated)
	}
	if got := f.store.activeCount(a.ID); got != 1 {
		t.Errorf("active records = %d, want 1", got)
	}

	// A scan later the same day must find the corrected row, not trip over
	// the uniqueness rule.
	res, err := f.svc.Scan(ctx, teacher, token)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !res.AlreadyRecorded || res.Record.Status != StatusPermission {
		t.Errorf("scan result = %+v, want AlreadyRecorded with the corrected row", res)
	}
}

func TestBatchCorrectOverwritesScanRecord(t *testing.T) {
	f := newFixture(t, 0)
	_, token := f.enroll(t, "1001", "Andi", "10A")
	ctx := context.Background()

	res, err := f.svc.Scan(ctx, teacher, token)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	summary, err := f.svc.BatchCorrect(ctx, teacher, "2024-03-01", []BatchItem{
		{StudentID: res.Student.ID, Status: StatusLate, ScanTime: "2024-03-01T07:45:00+07:00"},
	})
	if err != nil {
		t.Fatalf("BatchCorrect() error = %v", err)
	}
	if summary.Updated != 1 || summary.Created != 0 {
		t.Errorf("created=%d updated=%d, want 0/1", summary.Created, summary.Updated)
	}

	rec, _ := f.store.GetRecord(ctx, res.Record.ID)
	if rec.Status != StatusLate {
		t.Errorf("status = %q, want Late", rec.Status)
	}
	if want := time.Date(2024, 3, 1, 7, 45, 0, 0, f.svc.days.Location()); !rec.ScannedAt.Equal(want) {
		t.Errorf("scanned at = %v, want %v", rec.ScannedAt, want)
	}
}

func TestBatchCorrectSkips(t *testing.T) {
	f := newFixture(t, 0)
	a, _ := f.enroll(t, "1001", "Andi", "10A")
	outOfScope, _ := f.enroll(t, "2001", "Budi", "10B")
	ctx := context.Background()

	summary, err := f.svc.BatchCorrect(ctx, teacher, "2024-03-01", []BatchItem{
		{StudentID: a.ID, Status: StatusPresent},
		{StudentID: "ghost", Status: StatusPresent},
		{StudentID: outOfScope.ID, Status: StatusPresent},
	})
	if err != nil {
		t.Fatalf("BatchCorrect() error = %v", err)
	}
	if summary.Created != 1 {
		t.Errorf("created = %d, want 1", summary.Created)
	}
	if len(summary.Skipped) != 2 {
		t.Errorf("skipped = %v, want ghost and out-of-scope ids", summary.Skipped)
	}
	if got := f.store.activeCount(outOfScope.ID); got != 0 {
		t.Errorf("out-of-scope student gained %d records", got)
	}
}

func TestBatchCorrectUnparseableTimeFallsBack(t *testing.T) {
	f := newFixture(t, 0)
	a, _ := f.enroll(t, "1001", "Andi", "10A")
	ctx := context.Background()

	if _, err := f.svc.BatchCorrect(ctx, teacher, "2024-03-01", []BatchItem{
		{StudentID: a.ID, Status: StatusPresent, ScanTime: "late morning"},
	}); err != nil {
		t.Fatalf("BatchCorrect() error = %v", err)
	}

	dayStart, _ := f.svc.days.DayWindow(f.clock.now)
	rec, _ := f.store.ActiveRecord(ctx, a.ID, dayStart)
	if rec == nil {
		t.Fatal("no record created")
	}
	if !rec.ScannedAt.Equal(f.clock.now) {
		t.Errorf("scanned at = %v, want current instant %v", rec.ScannedAt, f.clock.now)
	}
}

func TestBatchCorrectInvalidDay(t *testing.T) {
	f := newFixture(t, 0)
	if _, err := f.svc.BatchCorrect(context.Background(), admin, "01-03-2024", nil); !errors.Is(err, clock.ErrInvalidDayFormat) {
		t.Errorf("BatchCorrect() error = %v, want ErrInvalidDayFormat", err)
	}
}

func TestBatchCorrectCommitFailureRollsBack(t *testing.T) {
	f := newFixture(t, 0)
	a, _ := f.enroll(t, "1001", "Andi", "10A")
	ctx := context.Background()

	f.store.commitErr = errors.New("connection reset")
	if _, err := f.svc.BatchCorrect(ctx, teacher, "2024-03-01", []BatchItem{
		{StudentID: a.ID, Status: StatusPresent},
	}); err == nil {
		t.Fatal("BatchCorrect() succeeded despite commit failure")
	}
	if got := f.store.activeCount(a.ID); got != 0 {
		t.Errorf("rolled-back batch left %d records", got)
	}
}
