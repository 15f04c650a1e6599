// Package report renders aggregated time-off records into chat messages.
package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"whosout/internal/aggregate"
	"whosout/internal/domain"
)

const (
	DefaultMention     = "<!channel>"
	maxFailureErrChars = 1200
	noOneOutDaily      = "_No support team members marked out today._"
	noOneOutDay        = "No one out"
)

type Options struct {
	Mention          string
	FullDayThreshold float64
}

func (o Options) threshold() float64 {
	if o.FullDayThreshold <= 0 {
		return aggregate.DefaultFullDayHours
	}
	return o.FullDayThreshold
}

// DailyMessage renders the daily announcement. Entries are expected in
// display order (aggregate.Sort).
func DailyMessage(entries []domain.AggregatedEntry, opts Options) string {
	if len(entries) == 0 {
		return noOneOutDaily
	}
	clauses := make([]string, 0, len(entries))
	for _, e := range entries {
		if aggregate.IsFullDay(e, opts.threshold()) {
			clauses = append(clauses, fmt.Sprintf("%s is out today", e.PersonName))
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s is out %s hours today", e.PersonName, FormatHours(e.TotalHours)))
	}
	msg := JoinClauses(clauses) + "."
	if opts.Mention != "" {
		msg = opts.Mention + " " + msg
	}
	return msg
}

// WeekDay is one rendered day of the weekly message.
type WeekDay struct {
	Date    domain.Date
	Entries []domain.AggregatedEntry
}

// WeeklyMessage renders the leads' coverage summary, one block per day.
func WeeklyMessage(days []WeekDay, opts Options) string {
	title := "*Support coverage this week*"
	if len(days) > 0 {
		title = fmt.Sprintf("%s (%s–%s)", title, DayLabel(days[0].Date), DayLabel(days[len(days)-1].Date))
	}
	blocks := []string{title}
	for _, d := range days {
		blocks = append(blocks, DayBlock(DayLabel(d.Date), d.Entries))
	}
	return strings.Join(blocks, "\n\n")
}

// DayBlock renders "label" followed by one line per person.
func DayBlock(label string, entries []domain.AggregatedEntry) string {
	if len(entries) == 0 {
		return label + "\n" + noOneOutDay
	}
	lines := []string{label}
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s — %sh (%s)", e.PersonName, FormatHours(e.TotalHours), e.Dominant))
	}
	return strings.Join(lines, "\n")
}

// DayLabel renders a date as "Monday 2/23".
func DayLabel(d domain.Date) string {
	return fmt.Sprintf("%s %d/%d", d.Weekday(), int(d.Month), d.Day)
}

// FailureMessage is posted to the fallback channel when a run fails.
func FailureMessage(kind string, err error) string {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	if len(detail) > maxFailureErrChars {
		n := maxFailureErrChars
		for n > 0 && !utf8.RuneStart(detail[n]) {
			n--
		}
		detail = detail[:n]
	}
	return fmt.Sprintf("*%s run did not work*\n%s", titleCase(kind), detail)
}

// FormatHours rounds to two decimals and drops trailing zeros.
func FormatHours(h float64) string {
	return strconv.FormatFloat(math.Round(h*100)/100, 'f', -1, 64)
}

// JoinClauses joins with commas and a final ", and".
func JoinClauses(clauses []string) string {
	switch len(clauses) {
	case 0:
		return ""
	case 1:
		return clauses[0]
	}
	return strings.Join(clauses[:len(clauses)-1], ", ") + ", and " + clauses[len(clauses)-1]
}

func titleCase(s string) string {
	if s == "" {
		return "Scheduled"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
