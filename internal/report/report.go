// Package report derives read-only summaries from the attendance ledger:
// semester breakdowns, dashboard counters, class rosters, and scan history.
// Every read is filtered through the caller's access scope before it
// reaches storage.
package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/attendance"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/clock"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/scope"
)

// StatusCounts is the per-student breakdown of non-voided records in range.
type StatusCounts struct {
	StudentNIS  string `json:"student_id"`
	StudentName string `json:"student_name"`
	ClassName   string `json:"class_name"`
	Present     int    `json:"total_present"`
	Late        int    `json:"total_late"`
	Sick        int    `json:"total_sick"`
	Permission  int    `json:"total_permission"`
	Absent      int    `json:"total_absent"`
}

// Row is one line of a semester report.
type Row struct {
	StatusCounts
	Percentage float64 `json:"attendance_percentage"`
}

// Stats are the dashboard counters.
type Stats struct {
	TotalToday     int `json:"total_today"`
	TotalThisWeek  int `json:"total_this_week"`
	TotalThisMonth int `json:"total_this_month"`
	TotalStudents  int `json:"total_students"`
}

// RosterEntry is one student of a class with their record for the day, if
// any. Status and ScannedAt are nil when the student has no record.
type RosterEntry struct {
	StudentID string             `json:"student_id"`
	NIS       string             `json:"nis"`
	Name      string             `json:"name"`
	ClassName string             `json:"class_name"`
	RecordID  *string            `json:"record_id,omitempty"`
	Status    *attendance.Status `json:"status,omitempty"`
	ScannedAt *time.Time         `json:"scanned_at,omitempty"`
}

// HistoryEntry is one ledger row joined with its student.
type HistoryEntry struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"student_id"`
	StudentName string     `json:"student_name"`
	ClassName   string     `json:"student_class"`
	ScannedAt   time.Time  `json:"scanned_at"`
	Status      string     `json:"status"`
	Voided      bool       `json:"voided"`
	VoidedAt    *time.Time `json:"voided_at,omitempty"`
}

// HistoryFilter narrows a history listing. Classes is the scope filter;
// nil means unrestricted.
type HistoryFilter struct {
	Classes   []string
	StudentID string
	DayStart  time.Time
	DayEnd    time.Time
	Limit     int
	Offset    int
}

// Store is the read-only persistence surface for reporting. A nil classes
// slice means no class filter; an empty one never reaches the store.
type Store interface {
	StatusCounts(ctx context.Context, from, to time.Time, classes []string) ([]StatusCounts, error)
	CountActiveRecords(ctx context.Context, from, to time.Time, classes []string) (int, error)
	CountStudents(ctx context.Context, classes []string) (int, error)
	ListClasses(ctx context.Context) ([]string, error)
	Roster(ctx context.Context, className string, dayStart, dayEnd time.Time) ([]RosterEntry, error)
	History(ctx context.Context, f HistoryFilter) ([]HistoryEntry, error)
}

// Counters serves the live per-day tallies the worker warms as scan events
// arrive. A false second return is a miss (cold key, cache down) and the
// caller falls back to the ledger.
type Counters interface {
	TodayCount(ctx context.Context, day string, classes []string) (int, bool)
}

// Service folds ledger rows into summaries.
type Service struct {
	store    Store
	scopes   *scope.Resolver
	days     *clock.Policy
	counters Counters
}

// NewService creates the aggregator.
func NewService(store Store, scopes *scope.Resolver, days *clock.Policy) *Service {
	return &Service{store: store, scopes: scopes, days: days}
}

// WithCounters attaches the warmed tally source consulted by Stats.
func (s *Service) WithCounters(c Counters) *Service {
	s.counters = c
	return s
}

// SemesterWindow returns the date range of a school semester: semester 1
// runs July through December, semester 2 January through June.
func (s *Service) SemesterWindow(semester, year int) (from, to time.Time, err error) {
	loc := s.days.Location()
	switch semester {
	case 1:
		return time.Date(year, time.July, 1, 0, 0, 0, 0, loc),
			time.Date(year+1, time.January, 1, 0, 0, 0, 0, loc), nil
	case 2:
		return time.Date(year, time.January, 1, 0, 0, 0, 0, loc),
			time.Date(year, time.July, 1, 0, 0, 0, 0, loc), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("semester must be 1 or 2, got %d", semester)
}

// Semester builds the per-student attendance report for a semester. A class
// filter outside the caller's scope is rejected, not silently narrowed.
func (s *Service) Semester(ctx context.Context, p scope.Principal, semester, year int, classFilter string) ([]Row, error) {
	from, to, err := s.SemesterWindow(semester, year)
	if err != nil {
		return nil, err
	}

	classes, err := s.scopeClasses(ctx, p, classFilter)
	if err != nil {
		return nil, err
	}
	if classes != nil && len(classes) == 0 {
		return []Row{}, nil
	}

	counts, err := s.store.StatusCounts(ctx, from, to, classes)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, Row{StatusCounts: c, Percentage: Percentage(c)})
	}
	return rows, nil
}

// Percentage is (Present+Late)/total*100 over the non-voided records in
// range, rounded to two decimals. Zero records yield 0, never a division
// error; there is no fixed expected-day denominator.
func Percentage(c StatusCounts) float64 {
	total := c.Present + c.Late + c.Sick + c.Permission + c.Absent
	if total == 0 {
		return 0
	}
	attended := c.Present + c.Late
	return math.Round(float64(attended)/float64(total)*100*100) / 100
}

// Stats returns the dashboard counters for today, the ISO week, and the
// calendar month containing now, all scope-filtered.
func (s *Service) Stats(ctx context.Context, p scope.Principal) (Stats, error) {
	classes, err := s.scopeClasses(ctx, p, "")
	if err != nil {
		return Stats{}, err
	}
	if classes != nil && len(classes) == 0 {
		return Stats{}, nil
	}

	now := s.days.Now()
	dayStart, dayEnd := s.days.DayWindow(now)

	// Week starts Monday.
	weekStart := dayStart.AddDate(0, 0, -((int(dayStart.Weekday()) + 6) % 7))
	weekEnd := weekStart.AddDate(0, 0, 7)

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.days.Location())
	monthEnd := monthStart.AddDate(0, 1, 0)

	var st Stats
	// Today's tally is the hot dashboard read; take the worker-warmed
	// counter when it has one and hit the ledger only on a miss. The
	// counter tracks scans as they land, so a just-applied correction
	// shows up once its key cycles out.
	if n, ok := s.todayFromCounters(ctx, dayStart, classes); ok {
		st.TotalToday = n
	} else if st.TotalToday, err = s.store.CountActiveRecords(ctx, dayStart, dayEnd, classes); err != nil {
		return Stats{}, err
	}
	if st.TotalThisWeek, err = s.store.CountActiveRecords(ctx, weekStart, weekEnd, classes); err != nil {
		return Stats{}, err
	}
	if st.TotalThisMonth, err = s.store.CountActiveRecords(ctx, monthStart, monthEnd, classes); err != nil {
		return Stats{}, err
	}
	if st.TotalStudents, err = s.store.CountStudents(ctx, classes); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (s *Service) todayFromCounters(ctx context.Context, dayStart time.Time, classes []string) (int, bool) {
	if s.counters == nil {
		return 0, false
	}
	return s.counters.TodayCount(ctx, s.days.FormatDay(dayStart), classes)
}

// Classes lists the distinct class names known to the registry.
func (s *Service) Classes(ctx context.Context) ([]string, error) {
	return s.store.ListClasses(ctx)
}

// Roster returns every student of a class with their record status for a
// civil day, feeding the batch-correction view.
func (s *Service) Roster(ctx context.Context, p scope.Principal, className, day string) ([]RosterEntry, error) {
	sc, err := s.scopes.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	if !sc.Allows(className) {
		return nil, fmt.Errorf("%w %s", attendance.ErrAccessDenied, className)
	}

	dayStart, err := s.days.ParseDay(day)
	if err != nil {
		return nil, err
	}
	return s.store.Roster(ctx, className, dayStart, dayStart.Add(24*time.Hour))
}

// History lists ledger rows newest first, optionally narrowed to a day or
// a student, always narrowed to the caller's scope.
func (s *Service) History(ctx context.Context, p scope.Principal, day, studentID string, limit, offset int) ([]HistoryEntry, error) {
	classes, err := s.scopeClasses(ctx, p, "")
	if err != nil {
		return nil, err
	}
	if classes != nil && len(classes) == 0 {
		return []HistoryEntry{}, nil
	}

	f := HistoryFilter{Classes: classes, StudentID: studentID, Limit: limit, Offset: offset}
	if day != "" {
		start, err := s.days.ParseDay(day)
		if err != nil {
			return nil, err
		}
		f.DayStart, f.DayEnd = start, start.Add(24*time.Hour)
	}
	return s.store.History(ctx, f)
}

// scopeClasses resolves the class filter a store call should use: nil for
// unrestricted, the scoped set otherwise. An explicit filter must sit
// inside the scope or the call fails with AccessDenied.
func (s *Service) scopeClasses(ctx context.Context, p scope.Principal, classFilter string) ([]string, error) {
	sc, err := s.scopes.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	if classFilter != "" {
		if !sc.Allows(classFilter) {
			return nil, fmt.Errorf("%w %s", attendance.ErrAccessDenied, classFilter)
		}
		return []string{classFilter}, nil
	}
	if sc.IsUnrestricted() {
		return nil, nil
	}
	return sc.Classes(), nil
}
