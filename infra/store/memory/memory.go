// Package memory is an in-process store.Store used by tests and by the
// "memory" store backend. Documents are kept as JSON so callers never share
// mutable state with the store.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
)

type collection map[string][]byte

// Store keeps every collection behind a single mutex. Transactions hold the
// mutex for their whole duration, so they are serialisable.
type Store struct {
	mu        sync.Mutex
	jobs      collection
	heroes    collection
	waves     collection
	customers collection
	clock     store.Clock
}

// New returns an empty store. now overrides the clock source when non-nil.
func New(now func() time.Time) *Store {
	s := &Store{
		jobs:      collection{},
		heroes:    collection{},
		waves:     collection{},
		customers: collection{},
	}
	s.clock.Source = now
	return s
}

func get[T any](c collection, id string) (T, error) {
	var v T
	b, ok := c[id]
	if !ok {
		return v, store.ErrNotFound
	}
	err := json.Unmarshal(b, &v)
	return v, err
}

func put(c collection, id string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c[id] = b
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get[model.Job](s.jobs, id)
}

func (s *Store) GetHero(_ context.Context, id string) (model.Hero, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get[model.Hero](s.heroes, id)
}

func (s *Store) GetWave(_ context.Context, jobID string) (model.WaveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get[model.WaveRecord](s.waves, jobID)
}

func (s *Store) GetCustomer(_ context.Context, id string) (model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get[model.Customer](s.customers, id)
}

func (s *Store) PutJob(_ context.Context, j model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return put(s.jobs, j.ID, j)
}

func (s *Store) PutHero(_ context.Context, h model.Hero) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return put(s.heroes, h.ID, h)
}

func (s *Store) PutWave(_ context.Context, w model.WaveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return put(s.waves, w.JobID, w)
}

func (s *Store) PutCustomer(_ context.Context, c model.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return put(s.customers, c.ID, c)
}

func (s *Store) DeleteWave(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.waves, jobID)
	return nil
}

// QueryHeroes returns matching heroes sorted by id.
func (s *Store) QueryHeroes(_ context.Context, q store.HeroQuery) ([]model.Hero, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Hero
	for id := range s.heroes {
		h, err := get[model.Hero](s.heroes, id)
		if err != nil {
			return nil, err
		}
		if q.Match(h) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// QueryJobs returns matching jobs, oldest first.
func (s *Store) QueryJobs(_ context.Context, q store.JobQuery) ([]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Job
	for id := range s.jobs {
		j, err := get[model.Job](s.jobs, id)
		if err != nil {
			return nil, err
		}
		if q.Match(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		}
		return out[i].ID < out[k].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// RunTx runs fn with the store locked. Writes are staged and applied only
// when fn returns nil. fn must not call methods on s.
func (s *Store) RunTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &tx{s: s, jobs: collection{}, heroes: collection{}, waves: collection{}}
	if err := fn(t); err != nil {
		return err
	}
	for id, b := range t.jobs {
		s.jobs[id] = b
	}
	for id, b := range t.heroes {
		s.heroes[id] = b
	}
	for id, b := range t.waves {
		s.waves[id] = b
	}
	return nil
}

func (s *Store) Now() time.Time { return s.clock.Now() }

func (s *Store) Close() error { return nil }

type tx struct {
	s      *Store
	jobs   collection
	heroes collection
	waves  collection
}

// lookup prefers staged writes over committed documents.
func lookup[T any](staged, committed collection, id string) (T, error) {
	if _, ok := staged[id]; ok {
		return get[T](staged, id)
	}
	return get[T](committed, id)
}

func (t *tx) GetJob(id string) (model.Job, error) { return lookup[model.Job](t.jobs, t.s.jobs, id) }
func (t *tx) GetHero(id string) (model.Hero, error) {
	return lookup[model.Hero](t.heroes, t.s.heroes, id)
}
func (t *tx) GetWave(jobID string) (model.WaveRecord, error) {
	return lookup[model.WaveRecord](t.waves, t.s.waves, jobID)
}
func (t *tx) PutJob(j model.Job) error         { return put(t.jobs, j.ID, j) }
func (t *tx) PutHero(h model.Hero) error       { return put(t.heroes, h.ID, h) }
func (t *tx) PutWave(w model.WaveRecord) error { return put(t.waves, w.JobID, w) }
