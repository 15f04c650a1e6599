// Package sqlite keeps the run journal: one row per pipeline run plus the
// aggregated entries that run reported. Runs never read it back.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"whosout/internal/domain"
)

const (
	StatusRunning   = "running"
	StatusDelivered = "delivered"
	StatusDryRun    = "dry_run"
	StatusFailed    = "failed"
)

type Run struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	EntryCount int       `json:"entry_count"`
	Message    string    `json:"message,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

type RunEntry struct {
	RunID        string             `json:"run_id"`
	PersonName   string             `json:"person_name"`
	BusinessDate string             `json:"business_date"`
	TotalHours   float64            `json:"total_hours"`
	Dominant     string             `json:"dominant"`
	Approval     string             `json:"approval"`
	Breakdown    map[string]float64 `json:"breakdown"`
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		target      TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		error       TEXT DEFAULT '',
		entry_count INTEGER DEFAULT 0,
		message     TEXT DEFAULT '',
		started_at  DATETIME NOT NULL,
		finished_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS run_entries (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id        TEXT NOT NULL,
		person_name   TEXT NOT NULL,
		business_date TEXT NOT NULL,
		total_hours   REAL NOT NULL,
		dominant      TEXT NOT NULL,
		approval      TEXT DEFAULT '',
		breakdown     TEXT DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_run_entries_run ON run_entries(run_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func InsertRun(db *sql.DB, run Run) error {
	if run.Status == "" {
		run.Status = StatusRunning
	}
	_, err := db.Exec(
		`INSERT INTO runs (id, kind, target, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Target, run.Status, run.StartedAt.UTC(),
	)
	return err
}

// FinishRun records the outcome of a run and the entries it reported.
func FinishRun(db *sql.DB, run Run, entries []domain.AggregatedEntry) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE runs SET status = ?, error = ?, entry_count = ?, message = ?, finished_at = ?,
		 target = COALESCE(NULLIF(?, ''), target) WHERE id = ?`,
		run.Status, run.Error, len(entries), run.Message, run.FinishedAt.UTC(), run.Target, run.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO run_entries (run_id, person_name, business_date, total_hours, dominant, approval, breakdown)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		breakdown := make(map[string]float64, len(e.Breakdown))
		for c, h := range e.Breakdown {
			breakdown[string(c)] = h
		}
		raw, err := json.Marshal(breakdown)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(
			run.ID, e.PersonName, e.BusinessDate.String(), e.TotalHours,
			string(e.Dominant), e.Approval.String(), string(raw),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs first.
func ListRuns(db *sql.DB, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT id, kind, target, status, error, entry_count, message, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Kind, &r.Target, &r.Status, &r.Error, &r.EntryCount, &r.Message, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func GetRun(db *sql.DB, id string) (Run, error) {
	var (
		r        Run
		finished sql.NullTime
	)
	err := db.QueryRow(
		`SELECT id, kind, target, status, error, entry_count, message, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Kind, &r.Target, &r.Status, &r.Error, &r.EntryCount, &r.Message, &r.StartedAt, &finished)
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return r, err
}

func GetRunEntries(db *sql.DB, runID string) ([]RunEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, person_name, business_date, total_hours, dominant, approval, breakdown
		 FROM run_entries WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var (
			e   RunEntry
			raw string
		)
		if err := rows.Scan(&e.RunID, &e.PersonName, &e.BusinessDate, &e.TotalHours, &e.Dominant, &e.Approval, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown for %s: %w", e.PersonName, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByStatus summarizes the journal for the health endpoint.
func CountByStatus(db *sql.DB) (map[string]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
