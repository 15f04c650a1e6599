// Package aggregate merges classified entries into one record per person and
// business date.
package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"whosout/internal/domain"
	"whosout/internal/extract"
	"whosout/internal/roster"
)

// DefaultFullDayHours tolerates float rounding of an 8 hour day.
const DefaultFullDayHours = 7.99

type Policy string

const (
	// PolicySum adds distinct partial-day blocks (4h PTO + 4h Sick = 8h).
	PolicySum Policy = "sum"
	// PolicyMax reports the largest single block for the day.
	PolicyMax Policy = "max"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySum:
		return PolicySum, nil
	case PolicyMax:
		return PolicyMax, nil
	}
	return "", fmt.Errorf("unknown aggregation policy %q (want sum or max)", s)
}

type groupKey struct {
	name string
	date domain.Date
}

type group struct {
	names   []string
	entries []domain.ClassifiedEntry
	seen    map[string]bool
}

// Aggregate groups entries by normalized name and date. Entries repeating the
// same raw text within a group are re-renders and count once under either
// policy. Output order is by date then display name; callers wanting display
// order use Sort.
func Aggregate(entries []domain.ClassifiedEntry, policy Policy) []domain.AggregatedEntry {
	groups := make(map[groupKey]*group)
	var keys []groupKey

	for _, e := range entries {
		if !(e.Hours > 0) {
			continue
		}
		k := groupKey{name: roster.Normalize(e.PersonName), date: e.BusinessDate}
		g, ok := groups[k]
		if !ok {
			g = &group{seen: make(map[string]bool)}
			groups[k] = g
			keys = append(keys, k)
		}
		g.names = append(g.names, e.PersonName)
		text := strings.ToLower(extract.CollapseSpace(e.RawText))
		if text != "" && g.seen[text] {
			continue
		}
		g.seen[text] = true
		g.entries = append(g.entries, e)
	}

	out := make([]domain.AggregatedEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, merge(groups[k], policy))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BusinessDate != out[j].BusinessDate {
			return out[i].BusinessDate.Before(out[j].BusinessDate)
		}
		return out[i].PersonName < out[j].PersonName
	})
	return out
}

func merge(g *group, policy Policy) domain.AggregatedEntry {
	// Canonical order keeps float accumulation independent of input order.
	items := append([]domain.ClassifiedEntry(nil), g.entries...)
	sort.Slice(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		if items[i].Hours != items[j].Hours {
			return items[i].Hours < items[j].Hours
		}
		return items[i].RawText < items[j].RawText
	})

	names := append([]string(nil), g.names...)
	sort.Strings(names)

	agg := domain.AggregatedEntry{
		PersonName:   names[0],
		BusinessDate: items[0].BusinessDate,
		Breakdown:    make(map[domain.Category]float64),
	}
	for _, it := range items {
		agg.Breakdown[it.Category] += it.Hours
		switch policy {
		case PolicyMax:
			if it.Hours > agg.TotalHours {
				agg.TotalHours = it.Hours
			}
		default:
			agg.TotalHours += it.Hours
		}
	}
	agg.Dominant = Dominant(agg.Breakdown)
	agg.Approval = approvalOf(items)
	return agg
}

// Dominant picks the single-line label for a breakdown.
func Dominant(breakdown map[domain.Category]float64) domain.DominantCategory {
	sick := breakdown[domain.CategorySick] > 0
	pto := false
	for c, h := range breakdown {
		if c.IsPTOFamily() && h > 0 {
			pto = true
		}
	}
	switch {
	case sick && pto:
		return domain.DominantPTOAndSick
	case sick:
		return domain.DominantSick
	case pto:
		return domain.DominantPTO
	default:
		return domain.DominantOut
	}
}

func approvalOf(items []domain.ClassifiedEntry) domain.Approval {
	all := true
	for _, it := range items {
		if it.Approval == domain.Pending {
			return domain.Pending
		}
		if it.Approval != domain.Approved {
			all = false
		}
	}
	if all && len(items) > 0 {
		return domain.Approved
	}
	return domain.ApprovalUnknown
}

// IsFullDay reports whether the entry reads as a whole day out.
func IsFullDay(e domain.AggregatedEntry, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultFullDayHours
	}
	return e.TotalHours >= threshold
}

// Sort orders entries for display: full days first, then hours descending,
// then name ascending.
func Sort(entries []domain.AggregatedEntry, threshold float64) {
	sort.SliceStable(entries, func(i, j int) bool {
		fi, fj := IsFullDay(entries[i], threshold), IsFullDay(entries[j], threshold)
		if fi != fj {
			return fi
		}
		if entries[i].TotalHours != entries[j].TotalHours {
			return entries[i].TotalHours > entries[j].TotalHours
		}
		return entries[i].PersonName < entries[j].PersonName
	})
}

// ByDate splits entries per business date, keeping order within each date.
func ByDate(entries []domain.AggregatedEntry) map[domain.Date][]domain.AggregatedEntry {
	out := make(map[domain.Date][]domain.AggregatedEntry)
	for _, e := range entries {
		out[e.BusinessDate] = append(out[e.BusinessDate], e)
	}
	return out
}
