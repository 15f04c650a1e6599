// Package calendar reconciles rendered calendar header labels with business
// dates in a fixed named time zone.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"whosout/internal/domain"
)

const DefaultZone = "America/Denver"

var ErrDateNotInWindow = errors.New("date not in visible window")

// DateNotInWindowError means the grid must be moved to another week; it is
// distinct from a header label that failed to parse.
type DateNotInWindowError struct {
	Date        domain.Date
	First, Last domain.Date
}

func (e *DateNotInWindowError) Error() string {
	if e.First.IsZero() {
		return fmt.Sprintf("date %s not in visible window (no parseable header labels)", e.Date)
	}
	return fmt.Sprintf("date %s not in visible window %s..%s", e.Date, e.First, e.Last)
}

func (e *DateNotInWindowError) Unwrap() error { return ErrDateNotInWindow }

// UnparsedLabel is a header column excluded from the map.
type UnparsedLabel struct {
	Index int
	Label string
}

// ColumnMap maps column indices of the visible week to business dates. It may
// be partial; unparseable columns are listed in Unmapped.
type ColumnMap struct {
	byIndex  map[int]domain.Date
	Unmapped []UnparsedLabel
}

// BuildColumnMap parses every label. ref anchors labels that omit the year.
func BuildColumnMap(labels []string, ref domain.Date) ColumnMap {
	m := ColumnMap{byIndex: make(map[int]domain.Date, len(labels))}
	for i, label := range labels {
		d, err := ParseLabel(label, ref)
		if err != nil {
			m.Unmapped = append(m.Unmapped, UnparsedLabel{Index: i, Label: label})
			continue
		}
		m.byIndex[i] = d
	}
	return m
}

func (m ColumnMap) Len() int { return len(m.byIndex) }

func (m ColumnMap) DateFor(index int) (domain.Date, bool) {
	d, ok := m.byIndex[index]
	return d, ok
}

// Indices returns the mapped column indices in ascending order.
func (m ColumnMap) Indices() []int {
	out := make([]int, 0, len(m.byIndex))
	for i := range m.byIndex {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// ColumnFor returns the column showing d.
func (m ColumnMap) ColumnFor(d domain.Date) (int, error) {
	for _, i := range m.Indices() {
		if m.byIndex[i] == d {
			return i, nil
		}
	}
	first, last := m.window()
	return -1, &DateNotInWindowError{Date: d, First: first, Last: last}
}

func (m ColumnMap) window() (domain.Date, domain.Date) {
	var first, last domain.Date
	for _, d := range m.byIndex {
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if last.IsZero() || d.After(last) {
			last = d
		}
	}
	return first, last
}

// LoadZone resolves a named zone, falling back to DefaultZone when empty.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", name, err)
	}
	return loc, nil
}

// Today returns the business date of now in loc, never the host's local date.
func Today(loc *time.Location, now time.Time) domain.Date {
	return domain.DateOf(now.In(loc))
}

// MondayOf returns the Monday starting d's week.
func MondayOf(d domain.Date) domain.Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// Days returns n consecutive dates starting at start.
func Days(start domain.Date, n int) []domain.Date {
	out := make([]domain.Date, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, start.AddDays(i))
	}
	return out
}
