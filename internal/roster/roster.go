// Package roster matches rendered person names against the configured team.
package roster

import (
	"regexp"
	"strings"

	"whosout/internal/domain"
)

var (
	disallowedRegex = regexp.MustCompile(`[^a-z0-9 ]`)
	spaceRegex      = regexp.MustCompile(`\s+`)
	listSplitRegex  = regexp.MustCompile(`[\n,]`)
)

// Normalize lowercases name, turns anything outside [a-z0-9 ] into a space
// and collapses whitespace.
func Normalize(name string) string {
	s := strings.ToLower(name)
	s = disallowedRegex.ReplaceAllString(s, " ")
	s = spaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Roster is read-only once built. The zero value accepts everyone.
type Roster struct {
	entries []string
}

func New(names []string) Roster {
	seen := make(map[string]bool)
	var entries []string
	for _, n := range names {
		norm := Normalize(n)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		entries = append(entries, norm)
	}
	return Roster{entries: entries}
}

// ParseList splits a comma or newline separated list of names.
func ParseList(s string) []string {
	var out []string
	for _, part := range listSplitRegex.Split(s, -1) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r Roster) Len() int { return len(r.entries) }

func (r Roster) Entries() []string {
	return append([]string(nil), r.entries...)
}

// IsMember is true for everyone when the roster is empty. Otherwise the
// normalized name must equal an entry or contain one.
func (r Roster) IsMember(name string) bool {
	if len(r.entries) == 0 {
		return true
	}
	n := Normalize(name)
	if n == "" {
		return false
	}
	for _, e := range r.entries {
		if n == e || strings.Contains(n, e) {
			return true
		}
	}
	return false
}

func (r Roster) Filter(entries []domain.ClassifiedEntry) []domain.ClassifiedEntry {
	if len(r.entries) == 0 {
		return entries
	}
	out := make([]domain.ClassifiedEntry, 0, len(entries))
	for _, e := range entries {
		if r.IsMember(e.PersonName) {
			out = append(out, e)
		}
	}
	return out
}
