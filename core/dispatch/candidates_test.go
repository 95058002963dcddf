package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozocode/On-The-Way-Rebuild/core/geo"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

func TestFindCandidatesFilters(t *testing.T) {
	f := newFixture(t, twoBands(0))
	f.hero("near", 1800)
	f.hero("far", 4000)
	f.hero("bound", 1000, func(h *model.Hero) { h.CurrentJobID = "other" })
	f.hero("offline", 1000, func(h *model.Hero) { h.Online = false })
	f.hero("unverified", 1000, func(h *model.Hero) { h.Verified = false })
	f.hero("stale", 1000, func(h *model.Hero) { h.Location.UpdatedAt = time.Now().Add(-time.Hour) })
	f.hero("nolocation", 1000, func(h *model.Hero) { h.Location = nil })
	f.hero("towonly", 1000, func(h *model.Hero) { h.ServiceTypes = []string{"tow"} })
	f.hero("jumper", 1200, func(h *model.Hero) { h.ServiceTypes = []string{"tow", "jump_start"} })
	f.hero("excluded", 1500)

	src := &StoreCandidates{Store: f.store, Scorer: newTestScorer(t, DefaultWeights()), TTL: 5 * time.Minute}
	band := twoBands(0)[0]
	got, err := src.FindCandidates(context.Background(), origin, band, "jump_start", model.NewHeroSet("excluded"))
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, c := range got {
		ids[i] = c.Hero.ID
		assert.True(t, c.DistanceM >= band.MinRadiusM && c.DistanceM <= band.MaxRadiusM)
		assert.InDelta(t, geo.Distance(origin, c.Hero.Location.Point), c.DistanceM, 1e-9)
	}
	assert.Equal(t, []string{"jumper", "near"}, ids)
}

func TestFindCandidatesBandCorrectness(t *testing.T) {
	f := newFixture(t, twoBands(0))
	for i, d := range []float64{0, 500, 3217, 3219, 5000, 8046, 8100, 12000} {
		f.hero(string(rune('a'+i)), d)
	}
	src := &StoreCandidates{Store: f.store, Scorer: newTestScorer(t, DefaultWeights()), TTL: time.Minute}
	for _, band := range twoBands(0) {
		band.MaxHeroes = 100
		got, err := src.FindCandidates(context.Background(), origin, band, "", nil)
		require.NoError(t, err)
		assert.Len(t, got, 3)
		for _, c := range got {
			assert.GreaterOrEqual(t, c.DistanceM, band.MinRadiusM)
			assert.LessOrEqual(t, c.DistanceM, band.MaxRadiusM)
		}
	}
}

func TestFindCandidatesTruncatesToMaxHeroes(t *testing.T) {
	f := newFixture(t, twoBands(0))
	for i := 0; i < 8; i++ {
		f.hero(string(rune('a'+i)), float64(100*(i+1)))
	}
	src := &StoreCandidates{Store: f.store, Scorer: newTestScorer(t, RadiusOnly()), TTL: time.Minute}
	band := Band{MaxRadiusM: 2000, MaxHeroes: 3}
	got, err := src.FindCandidates(context.Background(), origin, band, "", nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Hero.ID)
	assert.Equal(t, "c", got[2].Hero.ID)
}
