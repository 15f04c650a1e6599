package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whosout/internal/domain"
)

var day = domain.NewDate(2026, time.February, 25)

func entry(name string, hours float64, cat domain.Category, raw string) domain.ClassifiedEntry {
	return domain.ClassifiedEntry{PersonName: name, BusinessDate: day, Hours: hours, Category: cat, RawText: raw}
}

func TestSumPolicyCombinesPartialDays(t *testing.T) {
	got := Aggregate([]domain.ClassifiedEntry{
		entry("Jane Doe", 4, domain.CategorySick, "4.00 Sick"),
		entry("Jane Doe", 4, domain.CategoryPTO, "4.00 PTO"),
	}, PolicySum)

	require.Len(t, got, 1)
	assert.Equal(t, "Jane Doe", got[0].PersonName)
	assert.Equal(t, 8.0, got[0].TotalHours)
	assert.Equal(t, map[domain.Category]float64{domain.CategorySick: 4, domain.CategoryPTO: 4}, got[0].Breakdown)
	assert.Equal(t, domain.DominantPTOAndSick, got[0].Dominant)
	assert.True(t, IsFullDay(got[0], DefaultFullDayHours))
}

func TestMaxPolicyIgnoresRerenderedDuplicate(t *testing.T) {
	got := Aggregate([]domain.ClassifiedEntry{
		entry("Jane Doe", 8, domain.CategoryPTO, "8.00 PTO"),
		entry("Jane Doe", 8, domain.CategoryPTO, "8.00 PTO"),
	}, PolicyMax)

	require.Len(t, got, 1)
	assert.Equal(t, 8.0, got[0].TotalHours)
	assert.Equal(t, map[domain.Category]float64{domain.CategoryPTO: 8}, got[0].Breakdown)
}

func TestSumPolicyDeduplicatesRawTextToo(t *testing.T) {
	got := Aggregate([]domain.ClassifiedEntry{
		entry("Jane Doe", 8, domain.CategoryPTO, "8.00 PTO"),
		entry("jane doe", 8, domain.CategoryPTO, "8.00  pto"),
	}, PolicySum)

	require.Len(t, got, 1)
	assert.Equal(t, 8.0, got[0].TotalHours)
}

func TestMaxPolicyTakesLargestBlock(t *testing.T) {
	got := Aggregate([]domain.ClassifiedEntry{
		entry("Jane Doe", 2, domain.CategorySick, "2 Sick"),
		entry("Jane Doe", 6, domain.CategoryPTO, "6 PTO"),
	}, PolicyMax)

	require.Len(t, got, 1)
	assert.Equal(t, 6.0, got[0].TotalHours)
	assert.Equal(t, 8.0, got[0].Breakdown[domain.CategorySick]+got[0].Breakdown[domain.CategoryPTO])
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	in := []domain.ClassifiedEntry{
		entry("Jane Doe", 0.1, domain.CategorySick, "0.1 Sick"),
		entry("JANE DOE", 0.2, domain.CategoryPTO, "0.2 PTO"),
		entry("Jane Doe", 0.7, domain.CategoryPTO, "PTO 0.7"),
		entry("Jane  Doe", 3.3, domain.CategoryVacation, "Vacation 3.3"),
	}
	reversed := make([]domain.ClassifiedEntry, len(in))
	for i := range in {
		reversed[len(in)-1-i] = in[i]
	}

	a := Aggregate(in, PolicySum)
	b := Aggregate(reversed, PolicySum)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].TotalHours, b[0].TotalHours)
	assert.Equal(t, a[0].Breakdown, b[0].Breakdown)
	assert.Equal(t, a[0].PersonName, b[0].PersonName)
}

func TestAggregateSeparatesPeopleAndDates(t *testing.T) {
	next := entry("Jane Doe", 8, domain.CategoryPTO, "8 PTO")
	next.BusinessDate = day.AddDays(1)

	got := Aggregate([]domain.ClassifiedEntry{
		entry("Jane Doe", 8, domain.CategoryPTO, "8 PTO"),
		next,
		entry("Bob Roe", 4, domain.CategoryOut, "Out 4"),
		entry("Nobody", 0, domain.CategoryOut, "Out 0"),
	}, PolicySum)

	require.Len(t, got, 3)
	assert.Equal(t, "Bob Roe", got[0].PersonName)
	assert.Equal(t, domain.DominantOut, got[0].Dominant)
	assert.Equal(t, "Jane Doe", got[1].PersonName)
	assert.Equal(t, day.AddDays(1), got[2].BusinessDate)
}

func TestDominant(t *testing.T) {
	assert.Equal(t, domain.DominantSick, Dominant(map[domain.Category]float64{domain.CategorySick: 4}))
	assert.Equal(t, domain.DominantPTO, Dominant(map[domain.Category]float64{domain.CategoryHoliday: 8}))
	assert.Equal(t, domain.DominantPTO, Dominant(map[domain.Category]float64{domain.CategoryTimeOff: 2, domain.CategoryOut: 2}))
	assert.Equal(t, domain.DominantPTOAndSick, Dominant(map[domain.Category]float64{domain.CategoryVacation: 4, domain.CategorySick: 4}))
	assert.Equal(t, domain.DominantOut, Dominant(map[domain.Category]float64{domain.CategoryOut: 8}))
	assert.Equal(t, domain.DominantOut, Dominant(nil))
}

func TestApproval(t *testing.T) {
	approved := entry("Jane Doe", 4, domain.CategoryPTO, "4 PTO")
	approved.Approval = domain.Approved
	pending := entry("Jane Doe", 4, domain.CategorySick, "4 Sick")
	pending.Approval = domain.Pending

	assert.Equal(t, domain.Approved, Aggregate([]domain.ClassifiedEntry{approved}, PolicySum)[0].Approval)
	assert.Equal(t, domain.Pending, Aggregate([]domain.ClassifiedEntry{approved, pending}, PolicySum)[0].Approval)
	assert.Equal(t, domain.ApprovalUnknown, Aggregate([]domain.ClassifiedEntry{entry("Jane Doe", 4, domain.CategoryPTO, "4 PTO")}, PolicySum)[0].Approval)
}

func TestFullDayBoundary(t *testing.T) {
	assert.True(t, IsFullDay(domain.AggregatedEntry{TotalHours: 7.99}, DefaultFullDayHours))
	assert.False(t, IsFullDay(domain.AggregatedEntry{TotalHours: 7.98}, DefaultFullDayHours))
	assert.True(t, IsFullDay(domain.AggregatedEntry{TotalHours: 8.0}, DefaultFullDayHours))
	assert.True(t, IsFullDay(domain.AggregatedEntry{TotalHours: 7.99}, 0))
}

func TestSortOrder(t *testing.T) {
	entries := []domain.AggregatedEntry{
		{PersonName: "Cy", TotalHours: 4},
		{PersonName: "Bo", TotalHours: 8},
		{PersonName: "Al", TotalHours: 8},
		{PersonName: "Di", TotalHours: 6},
		{PersonName: "Ed", TotalHours: 10},
	}

	Sort(entries, DefaultFullDayHours)

	var names []string
	for _, e := range entries {
		names = append(names, e.PersonName)
	}
	assert.Equal(t, []string{"Ed", "Al", "Bo", "Di", "Cy"}, names)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicySum, p)

	p, err = ParsePolicy(" MAX ")
	require.NoError(t, err)
	assert.Equal(t, PolicyMax, p)

	_, err = ParsePolicy("average")
	assert.Error(t, err)
}
