// Package timesheets reads the scheduling application's rendered weekly grid,
// either from a live HTTP session or from a saved HTML snapshot.
package timesheets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"whosout/internal/extract"
)

// Selectors locate the grid parts in the rendered page.
type Selectors struct {
	HeaderLabel string `yaml:"header_label"`
	Row         string `yaml:"row"`
	RowName     string `yaml:"row_name"`
	// DayCell is a format string taking the 0-based column index.
	DayCell string `yaml:"day_cell"`
	Block   string `yaml:"block"`
	Counter string `yaml:"counter"`
	// LoginForm is present only while logged out.
	LoginForm string `yaml:"login_form"`
}

func DefaultSelectors() Selectors {
	return Selectors{
		HeaderLabel: ".grid-day-header .date_label",
		Row:         ".schedule-row-item .grid-row-off, .schedule-row-item .schedule_row",
		RowName:     ".name-ellipses",
		DayCell:     `.grid-day[data-day-index="%d"]`,
		Block:       ".timeOff, .default.schedule-item",
		Counter:     "span.float-right",
		LoginForm:   "#username",
	}
}

// WithDefaults fills empty selectors from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	if s.HeaderLabel == "" {
		s.HeaderLabel = d.HeaderLabel
	}
	if s.Row == "" {
		s.Row = d.Row
	}
	if s.RowName == "" {
		s.RowName = d.RowName
	}
	if s.DayCell == "" {
		s.DayCell = d.DayCell
	}
	if s.Block == "" {
		s.Block = d.Block
	}
	if s.Counter == "" {
		s.Counter = d.Counter
	}
	if s.LoginForm == "" {
		s.LoginForm = d.LoginForm
	}
	return s
}

// Document is one parsed rendering of the schedules page.
type Document struct {
	doc  *goquery.Document
	sel  Selectors
	html []byte
}

func ParseDocument(r io.Reader, sel Selectors) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Document{doc: doc, sel: sel.WithDefaults(), html: raw}, nil
}

// HTML returns the raw markup the document was parsed from.
func (d *Document) HTML() []byte { return d.html }

func (d *Document) HeaderLabels() []string {
	var out []string
	d.doc.Find(d.sel.HeaderLabel).Each(func(_ int, s *goquery.Selection) {
		out = append(out, extract.CollapseSpace(s.Text()))
	})
	return out
}

func (d *Document) CounterText() string {
	return extract.CollapseSpace(d.doc.Find(d.sel.Counter).First().Text())
}

func (d *Document) HasLoginForm() bool {
	return d.doc.Find(d.sel.LoginForm).Length() > 0
}

func (d *Document) Rows() []extract.RowHandle {
	var out []extract.RowHandle
	d.doc.Find(d.sel.Row).Each(func(_ int, s *goquery.Selection) {
		out = append(out, row{s: s, sel: d.sel})
	})
	return out
}

type row struct {
	s   *goquery.Selection
	sel Selectors
}

func (r row) Name(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(r.s.Find(r.sel.RowName).First().Text()), nil
}

func (r row) BlocksForColumn(ctx context.Context, column int) ([]extract.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cell := r.s.Find(fmt.Sprintf(r.sel.DayCell, column)).First()
	if cell.Length() == 0 {
		return nil, nil
	}
	var out []extract.Block
	cell.Find(r.sel.Block).Each(func(_ int, b *goquery.Selection) {
		class, _ := b.Attr("class")
		out = append(out, extract.Block{Text: b.Text(), StyleAttr: class})
	})
	return out, nil
}
