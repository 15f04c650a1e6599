package domain

import "strings"

type StyleHint string

const (
	StylePublished   StyleHint = "published"
	StyleUnpublished StyleHint = "unpublished"
	StyleUnknown     StyleHint = "unknown"
)

// StyleHintFromClass derives the approval signal from a block's class attribute.
func StyleHintFromClass(class string) StyleHint {
	c := strings.ToLower(class)
	switch {
	case strings.Contains(c, "unpublished"), strings.Contains(c, "pending"):
		return StyleUnpublished
	case strings.Contains(c, "published"), strings.Contains(c, "approved"):
		return StylePublished
	default:
		return StyleUnknown
	}
}

type Approval int

const (
	ApprovalUnknown Approval = iota
	Approved
	Pending
)

func (a Approval) String() string {
	switch a {
	case Approved:
		return "approved"
	case Pending:
		return "pending"
	default:
		return "unknown"
	}
}

func (s StyleHint) Approval() Approval {
	switch s {
	case StylePublished:
		return Approved
	case StyleUnpublished:
		return Pending
	default:
		return ApprovalUnknown
	}
}

type Category string

const (
	CategoryPTO      Category = "PTO"
	CategorySick     Category = "Sick"
	CategoryVacation Category = "Vacation"
	CategoryHoliday  Category = "Holiday"
	CategoryTimeOff  Category = "Time Off"
	CategoryOut      Category = "Out"
)

// Categories lists every category in classifier precedence order.
var Categories = []Category{
	CategorySick,
	CategoryPTO,
	CategoryVacation,
	CategoryHoliday,
	CategoryTimeOff,
	CategoryOut,
}

// CategoryKeyword maps lowercase needles to the category they name.
type CategoryKeyword struct {
	Category Category
	Needles  []string
}

// CategoryKeywords is the single keyword table shared by extraction and
// classification. Order is precedence: first match wins. Out has no
// keywords; it comes from an out/off signal word.
var CategoryKeywords = []CategoryKeyword{
	{CategorySick, []string{"sick"}},
	{CategoryPTO, []string{"pto", "paid time off"}},
	{CategoryVacation, []string{"vacation"}},
	{CategoryHoliday, []string{"holiday"}},
	{CategoryTimeOff, []string{"time off", "timeoff", "unavailable"}},
}

// IsPTOFamily reports whether c counts toward the PTO side of a dominant label.
func (c Category) IsPTOFamily() bool {
	switch c {
	case CategoryPTO, CategoryVacation, CategoryHoliday, CategoryTimeOff:
		return true
	}
	return false
}

type DominantCategory string

const (
	DominantSick       DominantCategory = "Sick"
	DominantPTO        DominantCategory = "PTO"
	DominantPTOAndSick DominantCategory = "PTO+Sick"
	DominantOut        DominantCategory = "Out"
)

// RawBlock is one scraped visual unit of the calendar grid.
type RawBlock struct {
	PersonName  string
	ColumnIndex int
	RawText     string
	Style       StyleHint
}

type ClassifiedEntry struct {
	PersonName   string
	BusinessDate Date
	Hours        float64
	Category     Category
	Approval     Approval
	RawText      string
}

// AggregatedEntry is one person on one business date after merging.
type AggregatedEntry struct {
	PersonName   string
	BusinessDate Date
	TotalHours   float64
	Breakdown    map[Category]float64
	Dominant     DominantCategory
	Approval     Approval
}
