// Package sqlite implements store.Store on SQLite through modernc.org/sqlite.
// Each entity is a JSON document; the columns needed by queries are copied
// next to it.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    doc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_status_created ON jobs(status, created_at);
CREATE TABLE IF NOT EXISTS heroes (
    id TEXT PRIMARY KEY,
    online INTEGER NOT NULL,
    verified INTEGER NOT NULL,
    current_job_id TEXT NOT NULL DEFAULT '',
    doc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS heroes_online_verified ON heroes(online, verified);
CREATE TABLE IF NOT EXISTS waves (
    job_id TEXT PRIMARY KEY,
    doc TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    doc TEXT NOT NULL
);`

const (
	busyTimeoutMS = 5000
	maxTxAttempts = 5
)

// Store is a SQLite-backed store.Store.
type Store struct {
	db    *sql.DB
	clock store.Clock
}

// Open opens or creates the database at path, enables WAL with a busy
// timeout and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	dsn := path
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn += fmt.Sprintf("%s_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", sep, busyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// queryer is satisfied by *sql.DB and *sql.Conn.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDoc[T any](ctx context.Context, q queryer, table, key, id string) (T, error) {
	var v T
	var doc string
	err := q.QueryRowContext(ctx, "SELECT doc FROM "+table+" WHERE "+key+" = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return v, store.ErrNotFound
	}
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return v, fmt.Errorf("decode %s %s: %w", table, id, err)
	}
	return v, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func putJob(ctx context.Context, q queryer, j model.Job) error {
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO jobs (id, status, created_at, doc) VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET status = excluded.status, created_at = excluded.created_at, doc = excluded.doc`,
		j.ID, string(j.Status), j.CreatedAt.UnixNano(), string(b))
	return err
}

func putHero(ctx context.Context, q queryer, h model.Hero) error {
	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO heroes (id, online, verified, current_job_id, doc) VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET online = excluded.online, verified = excluded.verified,
        current_job_id = excluded.current_job_id, doc = excluded.doc`,
		h.ID, boolInt(h.Online), boolInt(h.Verified), h.CurrentJobID, string(b))
	return err
}

func putWave(ctx context.Context, q queryer, w model.WaveRecord) error {
	b, err := json.Marshal(w)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO waves (job_id, doc) VALUES (?, ?)
        ON CONFLICT(job_id) DO UPDATE SET doc = excluded.doc`, w.JobID, string(b))
	return err
}

func (s *Store) GetJob(ctx context.Context, id string) (model.Job, error) {
	return getDoc[model.Job](ctx, s.db, "jobs", "id", id)
}

func (s *Store) GetHero(ctx context.Context, id string) (model.Hero, error) {
	return getDoc[model.Hero](ctx, s.db, "heroes", "id", id)
}

func (s *Store) GetWave(ctx context.Context, jobID string) (model.WaveRecord, error) {
	return getDoc[model.WaveRecord](ctx, s.db, "waves", "job_id", jobID)
}

func (s *Store) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	return getDoc[model.Customer](ctx, s.db, "customers", "id", id)
}

func (s *Store) PutJob(ctx context.Context, j model.Job) error   { return putJob(ctx, s.db, j) }
func (s *Store) PutHero(ctx context.Context, h model.Hero) error { return putHero(ctx, s.db, h) }
func (s *Store) PutWave(ctx context.Context, w model.WaveRecord) error {
	return putWave(ctx, s.db, w)
}

func (s *Store) PutCustomer(ctx context.Context, c model.Customer) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO customers (id, doc) VALUES (?, ?)
        ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`, c.ID, string(b))
	return err
}

func (s *Store) DeleteWave(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM waves WHERE job_id = ?`, jobID)
	return err
}

// QueryHeroes filters on the indexed columns and returns heroes sorted by id.
func (s *Store) QueryHeroes(ctx context.Context, q store.HeroQuery) ([]model.Hero, error) {
	query := `SELECT doc FROM heroes WHERE 1=1`
	var args []any
	if q.Online != nil {
		query += ` AND online = ?`
		args = append(args, boolInt(*q.Online))
	}
	if q.Verified != nil {
		query += ` AND verified = ?`
		args = append(args, boolInt(*q.Verified))
	}
	if q.UnboundOnly {
		query += ` AND current_job_id = ''`
	}
	query += ` ORDER BY id`
	return queryDocs[model.Hero](ctx, s.db, query, args...)
}

// QueryJobs returns matching jobs, oldest first.
func (s *Store) QueryJobs(ctx context.Context, q store.JobQuery) ([]model.Job, error) {
	query := `SELECT doc FROM jobs WHERE 1=1`
	var args []any
	if len(q.Statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(q.Statuses)-1) + `)`
		for _, st := range q.Statuses {
			args = append(args, string(st))
		}
	}
	if !q.CreatedBefore.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, q.CreatedBefore.UnixNano())
	}
	query += ` ORDER BY created_at, id`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}
	return queryDocs[model.Job](ctx, s.db, query, args...)
}

func queryDocs[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []T
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// RunTx runs fn inside BEGIN IMMEDIATE on a dedicated connection, so
// concurrent transactions are serialised by SQLite's write lock. A busy
// database is retried with a short backoff.
func (s *Store) RunTx(ctx context.Context, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.runTxOnce(ctx, fn)
		if err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
		}
	}
	return err
}

func (s *Store) runTxOnce(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return err
	}
	done := false
	defer func() {
		if !done {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		}
	}()
	if err := fn(&tx{ctx: ctx, conn: conn}); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return err
	}
	done = true
	return nil
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (s *Store) Now() time.Time { return s.clock.Now() }

func (s *Store) Close() error { return s.db.Close() }

type tx struct {
	ctx  context.Context
	conn *sql.Conn
}

func (t *tx) GetJob(id string) (model.Job, error) {
	return getDoc[model.Job](t.ctx, t.conn, "jobs", "id", id)
}

func (t *tx) GetHero(id string) (model.Hero, error) {
	return getDoc[model.Hero](t.ctx, t.conn, "heroes", "id", id)
}

func (t *tx) GetWave(jobID string) (model.WaveRecord, error) {
	return getDoc[model.WaveRecord](t.ctx, t.conn, "waves", "job_id", jobID)
}

func (t *tx) PutJob(j model.Job) error         { return putJob(t.ctx, t.conn, j) }
func (t *tx) PutHero(h model.Hero) error       { return putHero(t.ctx, t.conn, h) }
func (t *tx) PutWave(w model.WaveRecord) error { return putWave(t.ctx, t.conn, w) }
