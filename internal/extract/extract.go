// Package extract walks rendered calendar rows and keeps the blocks that look
// like time off.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"whosout/internal/domain"
)

// DefaultColumns is the number of day columns in a rendered week.
const DefaultColumns = 7

// Block is one rendered sub-element of a day cell.
type Block struct {
	Text      string
	StyleAttr string
}

// RowHandle is one rendered grid row as exposed by the page layer.
type RowHandle interface {
	Name(ctx context.Context) (string, error)
	BlocksForColumn(ctx context.Context, column int) ([]Block, error)
}

var (
	spaceRegex   = regexp.MustCompile(`\s+`)
	numeralRegex = regexp.MustCompile(`\d+(?:\.\d+)?|\.\d+`)
	keywordRegex = keywordPattern()
	outRegex     = regexp.MustCompile(`(?i)\b(out|off|unavailable)\b`)
)

func keywordPattern() *regexp.Regexp {
	var alts []string
	for _, k := range domain.CategoryKeywords {
		for _, n := range k.Needles {
			alts = append(alts, regexp.QuoteMeta(n))
		}
	}
	return regexp.MustCompile(`(?i)` + strings.Join(alts, "|"))
}

// CollapseSpace trims s and folds whitespace runs into one space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
}

func HasCategoryKeyword(text string) bool { return keywordRegex.MatchString(text) }

func HasOutSignal(text string) bool { return outRegex.MatchString(text) }

func HasNumeral(text string) bool { return numeralRegex.MatchString(text) }

// Numerals returns every integer or decimal token in text.
func Numerals(text string) []string { return numeralRegex.FindAllString(text, -1) }

// LooksLikeTimeOff is the coarse retention signal: a keyword or an out/off
// word, backed by either a numeral or a keyword.
func LooksLikeTimeOff(text string) bool {
	keyword := HasCategoryKeyword(text)
	if !keyword && !HasOutSignal(text) {
		return false
	}
	return keyword || HasNumeral(text)
}

// Extract reads columns [0, columns) of every row. Blank-named rows are filler
// and skipped. The source is never mutated.
func Extract(ctx context.Context, rows []RowHandle, columns int) ([]domain.RawBlock, error) {
	if columns <= 0 {
		columns = DefaultColumns
	}
	var out []domain.RawBlock
	for r, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, err := row.Name(ctx)
		if err != nil {
			return nil, fmt.Errorf("row %d name: %w", r, err)
		}
		name = CollapseSpace(name)
		if name == "" {
			continue
		}
		for col := 0; col < columns; col++ {
			blocks, err := row.BlocksForColumn(ctx, col)
			if err != nil {
				return nil, fmt.Errorf("row %d (%s) column %d: %w", r, name, col, err)
			}
			for _, b := range blocks {
				text := CollapseSpace(b.Text)
				if text == "" || !LooksLikeTimeOff(text) {
					continue
				}
				out = append(out, domain.RawBlock{
					PersonName:  name,
					ColumnIndex: col,
					RawText:     text,
					Style:       domain.StyleHintFromClass(b.StyleAttr),
				})
			}
		}
	}
	return out, nil
}
