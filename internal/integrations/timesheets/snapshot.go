package timesheets

import (
	"context"
	"fmt"
	"os"
	"sync"

	"whosout/internal/extract"
)

// Snapshot replays a saved HTML dump of the schedules page. The dump is
// taken after the selection was applied, so the counter is read as-is.
type Snapshot struct {
	Path      string
	Selectors Selectors

	once sync.Once
	doc  *Document
	err  error
}

func NewSnapshot(path string, sel Selectors) *Snapshot {
	return &Snapshot{Path: path, Selectors: sel}
}

func (s *Snapshot) load() (*Document, error) {
	s.once.Do(func() {
		f, err := os.Open(s.Path)
		if err != nil {
			s.err = fmt.Errorf("open snapshot: %w", err)
			return
		}
		defer f.Close()
		s.doc, s.err = ParseDocument(f, s.Selectors)
	})
	return s.doc, s.err
}

func (s *Snapshot) HeaderLabels(context.Context) ([]string, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.HeaderLabels(), nil
}

func (s *Snapshot) Rows(context.Context) ([]extract.RowHandle, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Rows(), nil
}

func (s *Snapshot) SelectionCounterText(context.Context) (string, error) {
	doc, err := s.load()
	if err != nil {
		return "", err
	}
	return doc.CounterText(), nil
}
