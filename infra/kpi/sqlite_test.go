package kpi

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

func completed(id, hero string, started, done time.Time) model.Job {
	return model.Job{ID: id, HeroID: hero, Status: model.JobCompleted, ServiceStartedAt: &started, CompletedAt: &done}
}

func TestRecordPayoutAggregatesPerDay(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kpi.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	d1 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	d2 := d1.Add(24 * time.Hour)
	require.NoError(t, s.RecordPayout(ctx, completed("j1", "h1", d1, d1.Add(30*time.Minute))))
	require.NoError(t, s.RecordPayout(ctx, completed("j2", "h1", d1.Add(time.Hour), d1.Add(75*time.Minute))))
	require.NoError(t, s.RecordPayout(ctx, completed("j3", "h1", d2, d2.Add(10*time.Minute))))
	require.NoError(t, s.RecordPayout(ctx, completed("j4", "h2", d1, d1.Add(time.Minute))))

	// credited once
	require.NoError(t, s.RecordPayout(ctx, completed("j1", "h1", d1, d1.Add(30*time.Minute))))
	// not completed
	require.NoError(t, s.RecordPayout(ctx, model.Job{ID: "j5", HeroID: "h1", Status: model.JobCancelled}))

	recs, err := s.Query(ctx, "h1", d1, d2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, Record{HeroID: "h1", Date: Day(d1), Jobs: 2, ServiceMinutes: 45}, recs[0])
	assert.Equal(t, Record{HeroID: "h1", Date: Day(d2), Jobs: 1, ServiceMinutes: 10}, recs[1])

	recs, err = s.Query(ctx, "h1", d2, d2)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
