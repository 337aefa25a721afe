// Package clock supplies the current time and the calendar values derived from
// it (today's ISO date, the current year/month) so that callers can be tested
// against a fixed instant.
package clock

import "time"

// DateLayout is the ISO calendar date layout used for transaction dates.
const DateLayout = "2006-01-02"

// Clock reports the current time
type Clock interface {
	Now() time.Time
}

// System is the wall clock
type System struct{}

// Now returns time.Now()
func (System) Now() time.Time { return time.Now() }

// Fixed always reports the same instant
type Fixed time.Time

// Now returns the fixed instant
func (f Fixed) Now() time.Time { return time.Time(f) }

// Period identifies a calendar month
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// PeriodOf returns the calendar month containing t
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Valid reports whether the month is within 1..12
func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year > 0
}

// Today returns the current date as YYYY-MM-DD
func Today(c Clock) string {
	return c.Now().Format(DateLayout)
}

// CurrentPeriod returns the calendar month of c.Now()
func CurrentPeriod(c Clock) Period {
	return PeriodOf(c.Now())
}

// OrSystem returns c, or the wall clock when c is nil
func OrSystem(c Clock) Clock {
	if c == nil {
		return System{}
	}
	return c
}
