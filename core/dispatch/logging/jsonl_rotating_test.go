package logging

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

func sampleRecord(jobID string, at time.Time, result model.WaveResult, heroes ...string) LogRecord {
	return LogRecord{
		Timestamp: at,
		JobID:     jobID,
		Result:    result,
		Waves:     []WaveSummary{{Index: 0, MaxRadiusM: 3218, Notified: heroes}},
	}
}

func TestRotatingJSONLStoreRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 3, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	big := sampleRecord("j", time.Now(), model.ResultNoHeroes)
	big.ServiceType = strings.Repeat("x", 64*1024)
	for i := 0; i < 20; i++ {
		require.NoError(t, store.Append(context.Background(), big))
	}
	backups, _ := filepath.Glob(store.backupPattern())
	assert.NotEmpty(t, backups, "expected rotated files")

	out, err := store.Query(context.Background(), LogQuery{JobID: "j"})
	require.NoError(t, err)
	assert.Len(t, out, 20)
}

func TestRotatingJSONLStoreQueryFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	now := time.Now()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, sampleRecord("j1", now, model.ResultAccepted, "h1", "h2")))
	require.NoError(t, store.Append(ctx, sampleRecord("j2", now.Add(time.Second), model.ResultNoHeroes, "h3")))

	out, err := store.Query(ctx, LogQuery{HeroID: "h2"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "j1", out[0].JobID)

	out, err = store.Query(ctx, LogQuery{Result: model.ResultNoHeroes})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "j2", out[0].JobID)

	out, err = store.Query(ctx, LogQuery{Start: now.Add(500 * time.Millisecond)})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Options{Backend: "csv", Path: "x"})
	var ub *UnknownBackendError
	assert.ErrorAs(t, err, &ub)
}
