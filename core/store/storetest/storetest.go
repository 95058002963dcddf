// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
)

// Run exercises a fresh store from newStore in each subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("documents", func(t *testing.T) { testDocuments(t, newStore(t)) })
	t.Run("queries", func(t *testing.T) { testQueries(t, newStore(t)) })
	t.Run("tx rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("tx serialisable", func(t *testing.T) { testSerialisable(t, newStore(t)) })
	t.Run("clock", func(t *testing.T) { testClock(t, newStore(t)) })
}

func testDocuments(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetHero(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetWave(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetCustomer(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	job := model.Job{ID: "j1", Status: model.JobIdle, NotifiedHeroes: model.NewHeroSet("a"), CreatedAt: time.Now().UTC()}
	require.NoError(t, s.PutJob(ctx, job))
	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, got.NotifiedHeroes.Has("a"))
	assert.Equal(t, model.JobIdle, got.Status)

	rating := 4.5
	require.NoError(t, s.PutHero(ctx, model.Hero{ID: "h1", Online: true, Stats: model.HeroStats{Rating: &rating}}))
	h, err := s.GetHero(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, h.Stats.Rating)
	assert.Equal(t, 4.5, *h.Stats.Rating)

	require.NoError(t, s.PutCustomer(ctx, model.Customer{ID: "c1", PushToken: "tok"}))
	c, err := s.GetCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "tok", c.PushToken)

	require.NoError(t, s.PutWave(ctx, model.NewWaveRecord("j1", 2, time.Now())))
	require.NoError(t, s.DeleteWave(ctx, "j1"))
	_, err = s.GetWave(ctx, "j1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testQueries(t *testing.T, s store.Store) {
	ctx := context.Background()
	heroes := []model.Hero{
		{ID: "b", Online: true, Verified: true},
		{ID: "a", Online: true, Verified: true, CurrentJobID: "j"},
		{ID: "c", Online: false, Verified: true},
		{ID: "d", Online: true, Verified: false},
	}
	for _, h := range heroes {
		require.NoError(t, s.PutHero(ctx, h))
	}
	got, err := s.QueryHeroes(ctx, store.HeroQuery{Online: store.Bool(true), Verified: store.Bool(true)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	got, err = s.QueryHeroes(ctx, store.HeroQuery{Online: store.Bool(true), UnboundOnly: true})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jobs := []model.Job{
		{ID: "old-done", Status: model.JobCompleted, CreatedAt: base},
		{ID: "old-cancel", Status: model.JobCancelled, CreatedAt: base.Add(time.Hour)},
		{ID: "new-done", Status: model.JobCompleted, CreatedAt: base.Add(48 * time.Hour)},
		{ID: "old-open", Status: model.JobSearching, CreatedAt: base},
	}
	for _, j := range jobs {
		require.NoError(t, s.PutJob(ctx, j))
	}
	found, err := s.QueryJobs(ctx, store.JobQuery{
		Statuses:      []model.JobStatus{model.JobCompleted, model.JobCancelled},
		CreatedBefore: base.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "old-done", found[0].ID)
	assert.Equal(t, "old-cancel", found[1].ID)

	found, err = s.QueryJobs(ctx, store.JobQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutJob(ctx, model.Job{ID: "j", Status: model.JobSearching}))
	boom := errors.New("boom")
	err := s.RunTx(ctx, func(tx store.Tx) error {
		j, err := tx.GetJob("j")
		if err != nil {
			return err
		}
		j.Status = model.JobAssigned
		if err := tx.PutJob(j); err != nil {
			return err
		}
		staged, err := tx.GetJob("j")
		if err != nil {
			return err
		}
		if staged.Status != model.JobAssigned {
			return errors.New("staged write not visible inside tx")
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	j, err := s.GetJob(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, model.JobSearching, j.Status)
}

func testSerialisable(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutHero(ctx, model.Hero{ID: "h"}))
	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RunTx(ctx, func(tx store.Tx) error {
				h, err := tx.GetHero("h")
				if err != nil {
					return err
				}
				h.Stats.TotalOffered++
				return tx.PutHero(h)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	h, err := s.GetHero(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, n, h.Stats.TotalOffered)
}

func testClock(t *testing.T, s store.Store) {
	prev := s.Now()
	for i := 0; i < 100; i++ {
		now := s.Now()
		require.True(t, now.After(prev), "clock went backwards")
		prev = now
	}
}
