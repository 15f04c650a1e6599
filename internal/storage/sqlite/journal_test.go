package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"whosout/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "whosout-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInitDBIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		db, err := InitDB(dbPath)
		if err != nil {
			t.Fatalf("InitDB #%d failed: %v", i+1, err)
		}
		db.Close()
	}
}

func TestRunLifecycle(t *testing.T) {
	db := newTestDB(t)
	start := time.Date(2026, 2, 24, 14, 0, 0, 0, time.UTC)

	if err := InsertRun(db, Run{ID: "r1", Kind: "daily", Target: "2026-02-24", StartedAt: start}); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	got, err := GetRun(db, "r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != StatusRunning || !got.FinishedAt.IsZero() {
		t.Fatalf("unexpected fresh run: %+v", got)
	}

	entries := []domain.AggregatedEntry{{
		PersonName:   "Jane Doe",
		BusinessDate: domain.NewDate(2026, time.February, 24),
		TotalHours:   8,
		Breakdown:    map[domain.Category]float64{domain.CategoryPTO: 4, domain.CategorySick: 4},
		Dominant:     domain.DominantPTOAndSick,
		Approval:     domain.Approved,
	}}
	done := Run{ID: "r1", Status: StatusDelivered, Message: "Jane Doe is out today.", FinishedAt: start.Add(time.Minute)}
	if err := FinishRun(db, done, entries); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err = GetRun(db, "r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != StatusDelivered || got.EntryCount != 1 || got.Message != "Jane Doe is out today." {
		t.Fatalf("unexpected finished run: %+v", got)
	}
	if !got.FinishedAt.Equal(start.Add(time.Minute)) {
		t.Fatalf("unexpected finished_at: %v", got.FinishedAt)
	}

	stored, err := GetRunEntries(db, "r1")
	if err != nil {
		t.Fatalf("GetRunEntries failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(stored))
	}
	e := stored[0]
	if e.BusinessDate != "2026-02-24" || e.TotalHours != 8 || e.Dominant != "PTO+Sick" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Breakdown["PTO"] != 4 || e.Breakdown["Sick"] != 4 {
		t.Fatalf("unexpected breakdown: %v", e.Breakdown)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	db := newTestDB(t)
	if err := FinishRun(db, Run{ID: "nope", Status: StatusFailed, FinishedAt: time.Now()}, nil); err == nil {
		t.Fatalf("expected error for unknown run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 2, 23, 14, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := InsertRun(db, Run{ID: id, Kind: "daily", StartedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("InsertRun %s failed: %v", id, err)
		}
	}
	if err := FinishRun(db, Run{ID: "b", Status: StatusFailed, Error: "await selection: timed out", FinishedAt: base.Add(90 * time.Minute)}, nil); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := ListRuns(db, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", runs)
	}
	if runs[1].Error == "" {
		t.Fatalf("expected error text on failed run")
	}

	counts, err := CountByStatus(db)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[StatusRunning] != 2 || counts[StatusFailed] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
