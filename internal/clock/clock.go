// Package clock fixes every attendance timestamp to a single civil calendar
// day in one local time zone. All day windows in the service go through here
// so "today" means the same thing in the scanner, the undo path, and reports.
package clock

import (
	"errors"
	"time"
)

// ErrInvalidDayFormat is returned when a day string is not YYYY-MM-DD.
var ErrInvalidDayFormat = errors.New("invalid day format, expected YYYY-MM-DD")

// ErrInvalidTimeFormat is returned when an explicit timestamp cannot be parsed.
var ErrInvalidTimeFormat = errors.New("invalid time format, expected RFC 3339")

const dayLayout = "2006-01-02"

// Clock supplies the current instant. Injected so window boundaries can be
// pinned in tests.
type Clock interface {
	Now() time.Time
}

// Policy pairs a clock with the zone all civil days are computed in.
type Policy struct {
	clock Clock
	loc   *time.Location
}

// New builds a policy for the named zone, e.g. "Asia/Jakarta".
func New(clock Clock, zone string) (*Policy, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, err
	}
	return &Policy{clock: clock, loc: loc}, nil
}

// NewFixed builds a policy directly from a location, used by tests.
func NewFixed(clock Clock, loc *time.Location) *Policy {
	return &Policy{clock: clock, loc: loc}
}

// Now returns the current instant in the policy zone.
func (p *Policy) Now() time.Time {
	return p.clock.Now().In(p.loc)
}

// Location returns the policy zone.
func (p *Policy) Location() *time.Location {
	return p.loc
}

// DayWindow returns the half-open interval [startOfDay, startOfDay+24h)
// containing t, in the policy zone. Callers compute it once per operation.
func (p *Policy) DayWindow(t time.Time) (start, end time.Time) {
	local := t.In(p.loc)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc)
	return start, start.Add(24 * time.Hour)
}

// ParseDay parses a YYYY-MM-DD string into the start of that civil day.
func (p *Policy) ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dayLayout, s, p.loc)
	if err != nil {
		return time.Time{}, ErrInvalidDayFormat
	}
	return t, nil
}

// ParseTime parses an explicit RFC 3339 timestamp, normalized to the policy
// zone. Batch corrections use it for backfilled scan times.
func (p *Policy) ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ErrInvalidTimeFormat
	}
	return t.In(p.loc), nil
}

// FormatDay renders the civil day containing t as YYYY-MM-DD.
func (p *Policy) FormatDay(t time.Time) string {
	return t.In(p.loc).Format(dayLayout)
}

// System is a Clock backed by the wall clock.
type System struct{}

// Now returns the current wall time.
func (System) Now() time.Time { return time.Now() }
