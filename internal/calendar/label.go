package calendar

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"whosout/internal/domain"
)

var (
	spaceRegex   = regexp.MustCompile(`\s+`)
	weekdayRegex = regexp.MustCompile(`(?i)^(mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)(day|nesday|sday|urday)?\.?,?\s+`)
	ordinalRegex = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th)\b`)
	monthDot     = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\.`)
	septRegex    = regexp.MustCompile(`(?i)\bsept\b`)
)

var withYear = []string{
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"1/2/2006",
	"1/2/06",
	"1-2-2006",
	"2006-01-02",
	"2006/1/2",
}

var withoutYear = []string{
	"Jan 2",
	"January 2",
	"2 Jan",
	"2 January",
	"1/2",
}

// ParseLabel parses a rendered header label such as "Feb 25, 2026",
// "Mon 2/23/2026" or "Wednesday, February 25". Labels without a year take the
// year that lands closest to ref.
func ParseLabel(label string, ref domain.Date) (domain.Date, error) {
	s := cleanLabel(label)
	if s == "" {
		return domain.Date{}, fmt.Errorf("empty header label")
	}
	for _, layout := range withYear {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.DateOf(t), nil
		}
	}
	for _, layout := range withoutYear {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return closestYear(t.Month(), t.Day(), ref), nil
	}
	return domain.Date{}, fmt.Errorf("unrecognized header label %q", label)
}

func cleanLabel(label string) string {
	s := strings.TrimSpace(spaceRegex.ReplaceAllString(label, " "))
	s = weekdayRegex.ReplaceAllString(s, "")
	s = ordinalRegex.ReplaceAllString(s, "$1")
	s = monthDot.ReplaceAllString(s, "$1")
	s = septRegex.ReplaceAllString(s, "Sep")
	return strings.TrimSpace(s)
}

func closestYear(month time.Month, day int, ref domain.Date) domain.Date {
	if ref.IsZero() {
		return domain.NewDate(time.Now().Year(), month, day)
	}
	best := domain.Date{}
	bestDist := 0
	for _, y := range []int{ref.Year - 1, ref.Year, ref.Year + 1} {
		if month == time.February && day == 29 && !isLeap(y) {
			continue
		}
		d := domain.NewDate(y, month, day)
		dist := ref.DaysUntil(d)
		if dist < 0 {
			dist = -dist
		}
		if best.IsZero() || dist < bestDist {
			best, bestDist = d, dist
		}
	}
	return best
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}
