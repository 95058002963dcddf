// Package store defines the transactional document store consumed by the
// dispatch core. Implementations live under infra/store.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("store: document not found")

// HeroQuery filters heroes by equality on their indexed flags. Nil fields
// are not filtered.
type HeroQuery struct {
	Online      *bool
	Verified    *bool
	UnboundOnly bool
}

// Match reports whether h satisfies the query.
func (q HeroQuery) Match(h model.Hero) bool {
	if q.Online != nil && h.Online != *q.Online {
		return false
	}
	if q.Verified != nil && h.Verified != *q.Verified {
		return false
	}
	if q.UnboundOnly && h.CurrentJobID != "" {
		return false
	}
	return true
}

// JobQuery filters jobs by status and creation time.
type JobQuery struct {
	Statuses      []model.JobStatus
	CreatedBefore time.Time
	Limit         int
}

// Match reports whether j satisfies the query, ignoring Limit.
func (q JobQuery) Match(j model.Job) bool {
	if len(q.Statuses) > 0 {
		found := false
		for _, s := range q.Statuses {
			if j.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !q.CreatedBefore.IsZero() && !j.CreatedAt.Before(q.CreatedBefore) {
		return false
	}
	return true
}

// Tx is the view of the store inside an atomic read-modify-write
// transaction. Writes become visible to other callers only when the
// transaction function returns nil.
type Tx interface {
	GetJob(id string) (model.Job, error)
	GetHero(id string) (model.Hero, error)
	GetWave(jobID string) (model.WaveRecord, error)
	PutJob(j model.Job) error
	PutHero(h model.Hero) error
	PutWave(w model.WaveRecord) error
}

// Store is a document store with single-document access, simple queries and
// multi-document transactions.
type Store interface {
	GetJob(ctx context.Context, id string) (model.Job, error)
	GetHero(ctx context.Context, id string) (model.Hero, error)
	GetWave(ctx context.Context, jobID string) (model.WaveRecord, error)
	GetCustomer(ctx context.Context, id string) (model.Customer, error)

	PutJob(ctx context.Context, j model.Job) error
	PutHero(ctx context.Context, h model.Hero) error
	PutWave(ctx context.Context, w model.WaveRecord) error
	PutCustomer(ctx context.Context, c model.Customer) error
	DeleteWave(ctx context.Context, jobID string) error

	QueryHeroes(ctx context.Context, q HeroQuery) ([]model.Hero, error)
	QueryJobs(ctx context.Context, q JobQuery) ([]model.Job, error)

	// RunTx executes fn atomically. fn may be retried and must not have side
	// effects outside tx.
	RunTx(ctx context.Context, fn func(tx Tx) error) error

	// Now returns the store clock. Successive calls never go backwards.
	Now() time.Time

	Close() error
}

// Clock hands out strictly increasing timestamps.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	// Source defaults to time.Now.
	Source func() time.Time
}

// Now returns the source time, bumped past the previous value if needed.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	src := c.Source
	if src == nil {
		src = time.Now
	}
	t := src().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// Bool returns a pointer to b for use in HeroQuery.
func Bool(b bool) *bool { return &b }
