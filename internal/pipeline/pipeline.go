// Package pipeline runs one extraction pass: readiness wait, header
// reconciliation, extraction, classification, roster filtering and
// aggregation. A run returns a complete result or an error, never a partial
// record set.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"whosout/internal/aggregate"
	"whosout/internal/calendar"
	"whosout/internal/classify"
	"whosout/internal/domain"
	"whosout/internal/extract"
	"whosout/internal/readiness"
	"whosout/internal/roster"
)

const DefaultWeeklyDays = 5

// Options is the configuration injected into a run. Nothing below reads
// process state directly.
type Options struct {
	Zone              *time.Location
	Roster            roster.Roster
	FullDayThreshold  float64
	DefaultBlockHours float64
	Policy            aggregate.Policy
	Readiness         readiness.Options
	Retry             RetryPolicy
	RunTimeout        time.Duration
	Columns           int
	WeeklyDays        int
	Now               func() time.Time
}

type Runner struct {
	Opts Options
	Log  logrus.FieldLogger
}

func NewRunner(opts Options, log logrus.FieldLogger) *Runner {
	return &Runner{Opts: opts, Log: log}
}

// Diagnostics counts what a run dropped along the way.
type Diagnostics struct {
	SelectionStatus   string
	Unmapped          []calendar.UnparsedLabel
	Blocks            int
	UnmappedBlocks    int
	Discarded         int
	OutsideRange      int
	NonMembers        int
	ClassifiedEntries int
}

type DailyResult struct {
	Date        domain.Date
	Column      int
	HeaderLabel string
	Entries     []domain.AggregatedEntry
	Diagnostics Diagnostics
}

type DayResult struct {
	Date    domain.Date
	Entries []domain.AggregatedEntry
}

type WeeklyResult struct {
	WeekStart   domain.Date
	Days        []DayResult
	Diagnostics Diagnostics
}

// Entries flattens the week in day order.
func (w WeeklyResult) Entries() []domain.AggregatedEntry {
	var out []domain.AggregatedEntry
	for _, d := range w.Days {
		out = append(out, d.Entries...)
	}
	return out
}

func (r *Runner) log() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}

func (r *Runner) zone() *time.Location {
	if r.Opts.Zone == nil {
		loc, err := calendar.LoadZone("")
		if err != nil {
			return time.UTC
		}
		return loc
	}
	return r.Opts.Zone
}

func (r *Runner) threshold() float64 {
	if r.Opts.FullDayThreshold <= 0 {
		return aggregate.DefaultFullDayHours
	}
	return r.Opts.FullDayThreshold
}

// Today is the current business date in the configured zone.
func (r *Runner) Today() domain.Date {
	now := time.Now
	if r.Opts.Now != nil {
		now = r.Opts.Now
	}
	return calendar.Today(r.zone(), now())
}

func (r *Runner) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Opts.RunTimeout > 0 {
		return context.WithTimeout(ctx, r.Opts.RunTimeout)
	}
	return context.WithCancel(ctx)
}

// Daily reports who is out on date. A zero date means today in the zone.
func (r *Runner) Daily(ctx context.Context, page Page, date domain.Date) (DailyResult, error) {
	ctx, cancel := r.withBudget(ctx)
	defer cancel()

	if date.IsZero() {
		date = r.Today()
	}
	log := r.log().WithField("date", date.String())

	snap, err := r.snapshot(ctx, page, date)
	if err != nil {
		return DailyResult{}, err
	}

	column, err := snap.columns.ColumnFor(date)
	if err != nil {
		log.WithField("headers", snap.labels).Warn("target date not in visible week")
		return DailyResult{}, fmt.Errorf("locate column: %w", err)
	}

	entries := r.classify(&snap, map[domain.Date]bool{date: true}, log)
	aggregated := aggregate.Aggregate(entries, r.Opts.Policy)
	aggregate.Sort(aggregated, r.threshold())

	log.WithFields(logrus.Fields{
		"column":  column,
		"entries": len(aggregated),
		"blocks":  snap.diag.Blocks,
	}).Info("daily extraction complete")

	return DailyResult{
		Date:        date,
		Column:      column,
		HeaderLabel: snap.labels[column],
		Entries:     aggregated,
		Diagnostics: snap.diag,
	}, nil
}

// Weekly reports the configured number of days starting at weekStart. A zero
// weekStart means the Monday of the current business week.
func (r *Runner) Weekly(ctx context.Context, page Page, weekStart domain.Date) (WeeklyResult, error) {
	ctx, cancel := r.withBudget(ctx)
	defer cancel()

	if weekStart.IsZero() {
		weekStart = calendar.MondayOf(r.Today())
	}
	n := r.Opts.WeeklyDays
	if n <= 0 {
		n = DefaultWeeklyDays
	}
	days := calendar.Days(weekStart, n)
	log := r.log().WithField("week_start", weekStart.String())

	snap, err := r.snapshot(ctx, page, weekStart)
	if err != nil {
		return WeeklyResult{}, err
	}

	wanted := make(map[domain.Date]bool, len(days))
	for _, d := range days {
		if _, err := snap.columns.ColumnFor(d); err != nil {
			log.WithField("headers", snap.labels).Warn("week not fully visible")
			return WeeklyResult{}, fmt.Errorf("locate column: %w", err)
		}
		wanted[d] = true
	}

	entries := r.classify(&snap, wanted, log)
	byDate := aggregate.ByDate(aggregate.Aggregate(entries, r.Opts.Policy))

	result := WeeklyResult{WeekStart: weekStart, Diagnostics: snap.diag}
	total := 0
	for _, d := range days {
		dayEntries := byDate[d]
		aggregate.Sort(dayEntries, r.threshold())
		result.Days = append(result.Days, DayResult{Date: d, Entries: dayEntries})
		total += len(dayEntries)
	}

	log.WithFields(logrus.Fields{
		"days":    len(days),
		"entries": total,
		"blocks":  snap.diag.Blocks,
	}).Info("weekly extraction complete")
	return result, nil
}

type snapshot struct {
	labels  []string
	columns calendar.ColumnMap
	blocks  []domain.RawBlock
	diag    Diagnostics
}

func (r *Runner) snapshot(ctx context.Context, page Page, ref domain.Date) (snapshot, error) {
	log := r.log()
	var snap snapshot

	if s, ok := page.(Session); ok {
		if err := r.Opts.Retry.Do(ctx, func() error { return s.PrepareSelection(ctx) }); err != nil {
			return snap, fmt.Errorf("prepare selection: %w", err)
		}
	}

	ropts := r.Opts.Readiness
	if ropts.OnSample == nil {
		ropts.OnSample = func(value string, err error) {
			if err != nil {
				log.WithError(err).Debug("selection counter not readable yet")
				return
			}
			log.WithField("counter", value).Debug("selection counter sampled")
		}
	}
	status, err := readiness.Await(ctx, page.SelectionCounterText, readiness.SelectionApplied, ropts)
	if err != nil {
		return snap, fmt.Errorf("await selection: %w", err)
	}
	snap.diag.SelectionStatus = status
	log.WithField("counter", status).Info("selection applied")

	err = r.Opts.Retry.Do(ctx, func() error {
		labels, err := page.HeaderLabels(ctx)
		if err != nil {
			return err
		}
		snap.labels = labels
		return nil
	})
	if err != nil {
		return snap, fmt.Errorf("read header labels: %w", err)
	}
	if len(snap.labels) == 0 {
		return snap, fmt.Errorf("read header labels: no labels rendered")
	}

	snap.columns = calendar.BuildColumnMap(snap.labels, ref)
	snap.diag.Unmapped = snap.columns.Unmapped
	for _, u := range snap.columns.Unmapped {
		log.WithFields(logrus.Fields{"column": u.Index, "label": u.Label}).Warn("header label not parseable, column excluded")
	}

	columns := r.Opts.Columns
	if columns <= 0 {
		columns = extract.DefaultColumns
	}
	err = r.Opts.Retry.Do(ctx, func() error {
		rows, err := page.Rows(ctx)
		if err != nil {
			return err
		}
		blocks, err := extract.Extract(ctx, rows, columns)
		if err != nil {
			return err
		}
		snap.blocks = blocks
		return nil
	})
	if err != nil {
		return snap, fmt.Errorf("extract grid: %w", err)
	}
	snap.diag.Blocks = len(snap.blocks)
	return snap, nil
}

// classify maps blocks to dates, classifies them and applies the roster.
// Blocks in unmapped columns are dropped, never shifted to a neighbour.
func (r *Runner) classify(snap *snapshot, wanted map[domain.Date]bool, log logrus.FieldLogger) []domain.ClassifiedEntry {
	c := classify.New(r.Opts.DefaultBlockHours, r.threshold())
	diag := &snap.diag
	var entries []domain.ClassifiedEntry
	for _, b := range snap.blocks {
		date, ok := snap.columns.DateFor(b.ColumnIndex)
		if !ok {
			diag.UnmappedBlocks++
			log.WithFields(logrus.Fields{"person": b.PersonName, "column": b.ColumnIndex, "text": b.RawText}).
				Warn("block in unmapped column dropped")
			continue
		}
		if !wanted[date] {
			diag.OutsideRange++
			continue
		}
		e, ok := c.ClassifyBlock(b, date)
		if !ok {
			diag.Discarded++
			log.WithFields(logrus.Fields{"person": b.PersonName, "text": b.RawText}).Debug("block discarded")
			continue
		}
		if !r.Opts.Roster.IsMember(e.PersonName) {
			diag.NonMembers++
			continue
		}
		entries = append(entries, e)
	}
	diag.ClassifiedEntries = len(entries)
	return entries
}
