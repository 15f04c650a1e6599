package domain

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day with no time or zone component. Business dates are
// always produced by formatting an instant into the configured zone first.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 12, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want yyyy-mm-dd): %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return d.noonUTC().Format(dateLayout)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.noonUTC().AddDate(0, 0, n))
}

func (d Date) Weekday() time.Weekday {
	return d.noonUTC().Weekday()
}

func (d Date) Before(o Date) bool {
	return d.noonUTC().Before(o.noonUTC())
}

func (d Date) After(o Date) bool {
	return o.Before(d)
}

// DaysUntil returns the signed number of days from d to o.
func (d Date) DaysUntil(o Date) int {
	return int(o.noonUTC().Sub(d.noonUTC()).Round(time.Hour) / (24 * time.Hour))
}

// Noon UTC keeps day arithmetic clear of DST transitions.
func (d Date) noonUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
}
