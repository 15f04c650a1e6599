package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whosout/internal/aggregate"
	"whosout/internal/calendar"
	"whosout/internal/domain"
	"whosout/internal/extract"
	"whosout/internal/readiness"
	"whosout/internal/roster"
)

type fakeRow struct {
	name string
	cols map[int][]extract.Block
}

func (r fakeRow) Name(context.Context) (string, error) { return r.name, nil }

func (r fakeRow) BlocksForColumn(_ context.Context, col int) ([]extract.Block, error) {
	return r.cols[col], nil
}

type fakePage struct {
	labels      []string
	rows        []extract.RowHandle
	counter     []string
	counterIdx  int
	headerFails int
	headerCalls int
	prepared    int
	prepareErr  error
}

func (p *fakePage) HeaderLabels(context.Context) ([]string, error) {
	p.headerCalls++
	if p.headerCalls <= p.headerFails {
		return nil, errors.New("transient: header not attached")
	}
	return p.labels, nil
}

func (p *fakePage) Rows(context.Context) ([]extract.RowHandle, error) { return p.rows, nil }

func (p *fakePage) SelectionCounterText(context.Context) (string, error) {
	if len(p.counter) == 0 {
		return "100%", nil
	}
	i := p.counterIdx
	if i >= len(p.counter) {
		i = len(p.counter) - 1
	}
	p.counterIdx++
	return p.counter[i], nil
}

type sessionPage struct {
	*fakePage
}

func (s sessionPage) PrepareSelection(context.Context) error {
	s.prepared++
	return s.prepareErr
}

type rejectedLogin struct{}

func (rejectedLogin) Error() string   { return "login rejected" }
func (rejectedLogin) Permanent() bool { return true }

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	if opts.Zone == nil {
		loc, err := calendar.LoadZone("America/Denver")
		require.NoError(t, err)
		opts.Zone = loc
	}
	if opts.Readiness.Timeout == 0 {
		opts.Readiness = readiness.Options{Timeout: 200 * time.Millisecond, PollInterval: time.Millisecond}
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = RetryPolicy{Attempts: 3, Backoff: time.Millisecond}
	}
	return NewRunner(opts, quietLogger())
}

var weekLabels = []string{"Mon 2/23/2026", "Tue 2/24/2026", "Wed 2/25/2026", "Thu 2/26/2026", "Fri 2/27/2026"}

func TestDailyEndToEndSumsPartialBlocks(t *testing.T) {
	page := &fakePage{
		labels:  weekLabels,
		counter: []string{"0 / 0", "0 / 39", "39 / 39"},
		rows: []extract.RowHandle{
			fakeRow{name: "Jane Doe", cols: map[int][]extract.Block{
				2: {{Text: "4.00 Sick"}, {Text: "4.00 PTO"}},
			}},
		},
	}

	res, err := testRunner(t, Options{Policy: aggregate.PolicySum}).Daily(context.Background(), page, domain.NewDate(2026, time.February, 25))

	require.NoError(t, err)
	assert.Equal(t, 2, res.Column)
	assert.Equal(t, "Wed 2/25/2026", res.HeaderLabel)
	assert.Equal(t, "39 / 39", res.Diagnostics.SelectionStatus)
	require.Len(t, res.Entries, 1)
	got := res.Entries[0]
	assert.Equal(t, "Jane Doe", got.PersonName)
	assert.Equal(t, 8.0, got.TotalHours)
	assert.Equal(t, map[domain.Category]float64{domain.CategorySick: 4, domain.CategoryPTO: 4}, got.Breakdown)
	assert.Equal(t, domain.DominantPTOAndSick, got.Dominant)
	assert.True(t, aggregate.IsFullDay(got, 7.99))
}

func TestDailyKeepsTimeOffKeywordBlocks(t *testing.T) {
	page := &fakePage{
		labels: weekLabels,
		rows: []extract.RowHandle{
			fakeRow{name: "Jane Doe", cols: map[int][]extract.Block{2: {{Text: "Unavailable"}}}},
			fakeRow{name: "Bob Roe", cols: map[int][]extract.Block{2: {{Text: "8 timeoff"}}}},
			fakeRow{name: "Al Poe", cols: map[int][]extract.Block{2: {{Text: "TimeOff"}}}},
		},
	}

	res, err := testRunner(t, Options{}).Daily(context.Background(), page, domain.NewDate(2026, time.February, 25))

	require.NoError(t, err)
	require.Len(t, res.Entries, 3)
	for _, e := range res.Entries {
		assert.Equalf(t, 8.0, e.TotalHours, "%s", e.PersonName)
		assert.Equalf(t, map[domain.Category]float64{domain.CategoryTimeOff: 8}, e.Breakdown, "%s", e.PersonName)
		assert.Equalf(t, domain.DominantPTO, e.Dominant, "%s", e.PersonName)
	}
	assert.Equal(t, 0, res.Diagnostics.Discarded)
}

func TestDailyFiltersRosterAndOtherDays(t *testing.T) {
	page := &fakePage{
		labels: weekLabels,
		rows: []extract.RowHandle{
			fakeRow{name: "Jane Doe-Smith", cols: map[int][]extract.Block{0: {{Text: "4 Sick"}}, 1: {{Text: "8 PTO"}}}},
			fakeRow{name: "Zed Ray", cols: map[int][]extract.Block{0: {{Text: "8 PTO"}}}},
			fakeRow{name: "", cols: map[int][]extract.Block{0: {{Text: "8 PTO"}}}},
		},
	}
	opts := Options{Roster: roster.New([]string{"jane doe"})}

	res, err := testRunner(t, opts).Daily(context.Background(), page, domain.NewDate(2026, time.February, 23))

	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "Jane Doe-Smith", res.Entries[0].PersonName)
	assert.Equal(t, 4.0, res.Entries[0].TotalHours)
	assert.Equal(t, 1, res.Diagnostics.NonMembers)
	assert.Equal(t, 1, res.Diagnostics.OutsideRange)
}

func TestDailyDropsBlocksInUnparseableColumns(t *testing.T) {
	page := &fakePage{
		labels: []string{"Mon 2/23/2026", "garbled", "Wed 2/25/2026"},
		rows: []extract.RowHandle{
			fakeRow{name: "Jane Doe", cols: map[int][]extract.Block{1: {{Text: "8 PTO"}}}},
		},
	}

	res, err := testRunner(t, Options{}).Daily(context.Background(), page, domain.NewDate(2026, time.February, 25))

	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.Equal(t, 1, res.Diagnostics.UnmappedBlocks)
	require.Len(t, res.Diagnostics.Unmapped, 1)
	assert.Equal(t, "garbled", res.Diagnostics.Unmapped[0].Label)
}

func TestDailyDateNotInWindowIsFatal(t *testing.T) {
	page := &fakePage{labels: weekLabels}

	_, err := testRunner(t, Options{}).Daily(context.Background(), page, domain.NewDate(2026, time.March, 4))

	assert.ErrorIs(t, err, calendar.ErrDateNotInWindow)
}

func TestDailyReadinessTimeoutIsFatal(t *testing.T) {
	page := &fakePage{labels: weekLabels, counter: []string{"0 / 0"}}
	opts := Options{Readiness: readiness.Options{Timeout: 20 * time.Millisecond, PollInterval: 2 * time.Millisecond}}

	_, err := testRunner(t, opts).Daily(context.Background(), page, domain.NewDate(2026, time.February, 23))

	require.Error(t, err)
	assert.ErrorIs(t, err, readiness.ErrTimeout)
	var te *readiness.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "0 / 0", te.Last)
	assert.Equal(t, 0, page.headerCalls, "grid must not be read before selection is applied")
}

func TestDailyRetriesTransientCollaboratorFailures(t *testing.T) {
	page := &fakePage{labels: weekLabels, headerFails: 2}

	_, err := testRunner(t, Options{}).Daily(context.Background(), page, domain.NewDate(2026, time.February, 23))

	require.NoError(t, err)
	assert.Equal(t, 3, page.headerCalls)
}

func TestDailyGivesUpAfterBoundedAttempts(t *testing.T) {
	page := &fakePage{labels: weekLabels, headerFails: 10}
	opts := Options{Retry: RetryPolicy{Attempts: 2, Backoff: time.Millisecond, Incremental: true}}

	_, err := testRunner(t, opts).Daily(context.Background(), page, domain.NewDate(2026, time.February, 23))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read header labels")
	assert.Equal(t, 2, page.headerCalls)
}

func TestDailyDefaultsToTodayInZone(t *testing.T) {
	page := &fakePage{labels: weekLabels}
	// 2026-02-25 05:00 UTC is still Feb 24 in Denver.
	opts := Options{Now: func() time.Time { return time.Date(2026, time.February, 25, 5, 0, 0, 0, time.UTC) }}

	res, err := testRunner(t, opts).Daily(context.Background(), page, domain.Date{})

	require.NoError(t, err)
	assert.Equal(t, domain.NewDate(2026, time.February, 24), res.Date)
	assert.Equal(t, 1, res.Column)
}

func TestDailyPreparesSessionPages(t *testing.T) {
	inner := &fakePage{labels: weekLabels}

	_, err := testRunner(t, Options{}).Daily(context.Background(), sessionPage{inner}, domain.NewDate(2026, time.February, 23))

	require.NoError(t, err)
	assert.Equal(t, 1, inner.prepared)
}

func TestDailyDoesNotRetryPermanentFailures(t *testing.T) {
	inner := &fakePage{labels: weekLabels, prepareErr: fmt.Errorf("status 200: %w", rejectedLogin{})}

	_, err := testRunner(t, Options{}).Daily(context.Background(), sessionPage{inner}, domain.NewDate(2026, time.February, 23))

	require.Error(t, err)
	assert.ErrorIs(t, err, rejectedLogin{})
	assert.Equal(t, 1, inner.prepared)
	assert.Equal(t, 0, inner.headerCalls)
}

func TestDailyRetriesTransientPrepareFailures(t *testing.T) {
	inner := &fakePage{labels: weekLabels, prepareErr: errors.New("connection reset")}

	_, err := testRunner(t, Options{}).Daily(context.Background(), sessionPage{inner}, domain.NewDate(2026, time.February, 23))

	require.Error(t, err)
	assert.Equal(t, 3, inner.prepared)
}

func TestWeeklyGroupsByDayAndKeepsEmptyDays(t *testing.T) {
	page := &fakePage{
		labels: append([]string{"Sun 2/22/2026"}, append(weekLabels, "Sat 2/28/2026")...),
		rows: []extract.RowHandle{
			fakeRow{name: "Jane Doe", cols: map[int][]extract.Block{
				1: {{Text: "8.00 PTO"}, {Text: "8.00 PTO"}},
				3: {{Text: "2 Sick"}},
				6: {{Text: "8 PTO"}},
			}},
			fakeRow{name: "Bob Roe", cols: map[int][]extract.Block{1: {{Text: "Vacation"}}, 3: {{Text: "Out 6"}}}},
		},
	}
	opts := Options{Policy: aggregate.PolicyMax, Now: func() time.Time {
		return time.Date(2026, time.February, 26, 18, 0, 0, 0, time.UTC)
	}}

	res, err := testRunner(t, opts).Weekly(context.Background(), page, domain.Date{})

	require.NoError(t, err)
	assert.Equal(t, domain.NewDate(2026, time.February, 23), res.WeekStart)
	require.Len(t, res.Days, 5)

	mon := res.Days[0].Entries
	require.Len(t, mon, 2)
	assert.Equal(t, "Bob Roe", mon[0].PersonName)
	assert.Equal(t, "Jane Doe", mon[1].PersonName)
	assert.Equal(t, 8.0, mon[1].TotalHours)

	assert.Empty(t, res.Days[1].Entries)

	wed := res.Days[2].Entries
	require.Len(t, wed, 2)
	assert.Equal(t, "Bob Roe", wed[0].PersonName)
	assert.Equal(t, domain.DominantSick, wed[1].Dominant)

	assert.Len(t, res.Entries(), 4)
	assert.Equal(t, 1, res.Diagnostics.OutsideRange)
}

func TestWeeklyRequiresWholeWeekVisible(t *testing.T) {
	page := &fakePage{labels: weekLabels[:3]}

	_, err := testRunner(t, Options{}).Weekly(context.Background(), page, domain.NewDate(2026, time.February, 23))

	assert.ErrorIs(t, err, calendar.ErrDateNotInWindow)
}

func TestRunTimeoutAbortsRun(t *testing.T) {
	page := &fakePage{labels: weekLabels, counter: []string{"0 / 0"}}
	opts := Options{
		RunTimeout: 10 * time.Millisecond,
		Readiness:  readiness.Options{Timeout: time.Minute, PollInterval: time.Millisecond},
	}

	_, err := testRunner(t, opts).Daily(context.Background(), page, domain.NewDate(2026, time.February, 23))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
