// Package classify turns free-text calendar blocks into hours and a time-off
// category. The keyword table itself is domain.CategoryKeywords.
package classify

import (
	"math"
	"strconv"
	"strings"

	"whosout/internal/domain"
	"whosout/internal/extract"
)

// DefaultBlockHours is assumed when a block names a category but no number.
const DefaultBlockHours = 8.0

type Result struct {
	Hours    float64
	Category domain.Category
}

type Classifier struct {
	// DefaultHours applies to numeral-less blocks; zero means DefaultBlockHours.
	DefaultHours float64
}

// New returns a classifier whose numeral-less default is at least the
// full-day threshold, so such blocks always read as a full day.
func New(defaultHours, fullDayThreshold float64) Classifier {
	if defaultHours <= 0 {
		defaultHours = DefaultBlockHours
	}
	if fullDayThreshold > defaultHours {
		defaultHours = fullDayThreshold
	}
	return Classifier{DefaultHours: defaultHours}
}

// Classify returns ok=false when the text does not look like time off or
// the resolved hours are not a finite positive number.
func (c Classifier) Classify(text string) (Result, bool) {
	lower := strings.ToLower(extract.CollapseSpace(text))
	if lower == "" {
		return Result{}, false
	}

	category, matched := categoryOf(lower)
	if !matched && !extract.HasOutSignal(lower) {
		return Result{}, false
	}
	if !matched {
		category = domain.CategoryOut
	}

	hours, found := maxNumeral(lower)
	if !found {
		hours = c.DefaultHours
		if hours <= 0 {
			hours = DefaultBlockHours
		}
	}
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return Result{}, false
	}
	return Result{Hours: hours, Category: category}, true
}

// ClassifyBlock classifies a raw block already mapped to its business date.
func (c Classifier) ClassifyBlock(b domain.RawBlock, date domain.Date) (domain.ClassifiedEntry, bool) {
	res, ok := c.Classify(b.RawText)
	if !ok {
		return domain.ClassifiedEntry{}, false
	}
	return domain.ClassifiedEntry{
		PersonName:   b.PersonName,
		BusinessDate: date,
		Hours:        res.Hours,
		Category:     res.Category,
		Approval:     b.Style.Approval(),
		RawText:      extract.CollapseSpace(b.RawText),
	}, true
}

func categoryOf(lower string) (domain.Category, bool) {
	for _, k := range domain.CategoryKeywords {
		for _, n := range k.Needles {
			if strings.Contains(lower, n) {
				return k.Category, true
			}
		}
	}
	return "", false
}

// The largest numeral is the hours figure; smaller ones tend to be date
// fragments bleeding into the block text.
func maxNumeral(text string) (float64, bool) {
	best := 0.0
	found := false
	for _, tok := range extract.Numerals(text) {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		if !found || v > best {
			best = v
			found = true
		}
	}
	return best, found
}
