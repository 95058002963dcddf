// Package logging persists one audit record per finished dispatch.
package logging

import (
	"context"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

// WaveSummary is the audit view of one executed wave.
type WaveSummary struct {
	Index      int      `json:"index"`
	MinRadiusM float64  `json:"min_radius_m"`
	MaxRadiusM float64  `json:"max_radius_m"`
	Candidates int      `json:"candidates"`
	Notified   []string `json:"notified"`
	LookupErr  string   `json:"lookup_error,omitempty"`
}

// LogRecord captures one dispatch from start to its terminal result.
type LogRecord struct {
	Timestamp   time.Time        `json:"timestamp"`
	JobID       string           `json:"job_id"`
	CustomerID  string           `json:"customer_id"`
	ServiceType string           `json:"service_type"`
	Pickup      model.Point      `json:"pickup"`
	Result      model.WaveResult `json:"result"`
	AcceptedBy  string           `json:"accepted_by,omitempty"`
	Waves       []WaveSummary    `json:"waves"`
	DurationMS  int64            `json:"duration_ms"`
}

// Notified returns every hero offered the job, in wave order.
func (r LogRecord) Notified() []string {
	var out []string
	for _, w := range r.Waves {
		out = append(out, w.Notified...)
	}
	return out
}

// LogQuery defines filters for retrieving records. Zero fields match all.
type LogQuery struct {
	Start  time.Time
	End    time.Time
	JobID  string
	HeroID string
	Result model.WaveResult
}

// Match reports whether r satisfies q.
func (q LogQuery) Match(r LogRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.JobID != "" && r.JobID != q.JobID {
		return false
	}
	if q.Result != "" && r.Result != q.Result {
		return false
	}
	if q.HeroID != "" && r.AcceptedBy != q.HeroID {
		for _, id := range r.Notified() {
			if id == q.HeroID {
				return true
			}
		}
		return false
	}
	return true
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}

// Options selects and configures a LogStore backend.
type Options struct {
	Backend    string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Open returns the LogStore described by o.
func Open(o Options) (LogStore, error) {
	switch o.Backend {
	case "", "jsonl":
		return NewRotatingJSONLStore(o.Path, o.MaxSizeMB, o.MaxBackups, o.MaxAgeDays)
	case "sqlite":
		return NewSQLiteStore(o.Path)
	default:
		return nil, &UnknownBackendError{Backend: o.Backend}
	}
}

// UnknownBackendError is returned by Open for an unsupported backend.
type UnknownBackendError struct{ Backend string }

func (e *UnknownBackendError) Error() string { return "logging: unknown backend " + e.Backend }
