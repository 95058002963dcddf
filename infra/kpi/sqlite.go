// Package kpi keeps a per-hero daily ledger of completed jobs. It is the
// service's payout recorder: every completed job is credited exactly once.
package kpi

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

// Record aggregates one hero's completed work for one UTC day.
type Record struct {
	HeroID         string    `json:"hero_id"`
	Date           time.Time `json:"date"`
	Jobs           int       `json:"jobs"`
	ServiceMinutes float64   `json:"service_minutes"`
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SQLiteStore persists KPI records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS hero_kpi (
        hero_id TEXT,
        day INTEGER,
        jobs INTEGER,
        service_minutes REAL,
        PRIMARY KEY(hero_id, day)
    );
    CREATE TABLE IF NOT EXISTS credited_jobs (
        job_id TEXT PRIMARY KEY
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// RecordPayout credits a completed job to its hero. Jobs already credited,
// unassigned or not completed are ignored.
func (s *SQLiteStore) RecordPayout(ctx context.Context, job model.Job) error {
	if job.Status != model.JobCompleted || job.HeroID == "" || job.CompletedAt == nil {
		return nil
	}
	var minutes float64
	if job.ServiceStartedAt != nil {
		minutes = job.CompletedAt.Sub(*job.ServiceStartedAt).Minutes()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO credited_jobs (job_id) VALUES (?)`, job.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO hero_kpi (hero_id, day, jobs, service_minutes)
        VALUES (?, ?, 1, ?)
        ON CONFLICT(hero_id, day) DO UPDATE SET
            jobs = jobs + 1,
            service_minutes = service_minutes + excluded.service_minutes`,
		job.HeroID, Day(*job.CompletedAt).Unix(), minutes)
	if err != nil {
		return fmt.Errorf("credit job %s: %w", job.ID, err)
	}
	return tx.Commit()
}

// Query returns heroID's records in the range [start,end], oldest first.
func (s *SQLiteStore) Query(ctx context.Context, heroID string, start, end time.Time) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT hero_id, day, jobs, service_minutes
        FROM hero_kpi WHERE hero_id = ? AND day >= ? AND day <= ? ORDER BY day`,
		heroID, Day(start).Unix(), Day(end).Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Record
	for rows.Next() {
		var r Record
		var ts int64
		if err := rows.Scan(&r.HeroID, &ts, &r.Jobs, &r.ServiceMinutes); err != nil {
			return nil, err
		}
		r.Date = time.Unix(ts, 0).UTC()
		res = append(res, r)
	}
	return res, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
