package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozocode/On-The-Way-Rebuild/core/geo"
)

func TestDefaultBandsAreContiguousRings(t *testing.T) {
	bands := DefaultBands()
	require.Len(t, bands, 5)
	assert.Equal(t, 0.0, bands[0].MinRadiusM)
	assert.InDelta(t, 9*geo.MetersPerMile, bands[4].MaxRadiusM, 1e-9)
	for i := 1; i < len(bands); i++ {
		assert.Equal(t, bands[i-1].MaxRadiusM, bands[i].MinRadiusM)
		assert.Equal(t, 20.0, bands[i].TimeoutSeconds)
	}
	_, err := DefaultConfig().Schedule()
	assert.NoError(t, err)
}

func TestScheduleRejectsMalformedBands(t *testing.T) {
	cases := map[string][]Band{
		"empty":        {},
		"inverted":     {{MinRadiusM: 10, MaxRadiusM: 5, MaxHeroes: 1}},
		"no heroes":    {{MinRadiusM: 0, MaxRadiusM: 5, MaxHeroes: 0}},
		"shrinking":    {{MaxRadiusM: 100, MaxHeroes: 1}, {MaxRadiusM: 50, MaxHeroes: 1}},
		"neg timeout":  {{MaxRadiusM: 100, MaxHeroes: 1, TimeoutSeconds: -1}},
		"zero outside": {{MinRadiusM: 0, MaxRadiusM: 0, MaxHeroes: 1}},
	}
	for name, waves := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Config{Waves: waves, Weights: DefaultWeights()}.Schedule()
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSetDefaultsKeepsExplicitEmptySchedule(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Len(t, c.Waves, 5)
	assert.Equal(t, DefaultWeights(), c.Weights)

	c = Config{Waves: []Band{}}
	c.SetDefaults()
	assert.Empty(t, c.Waves)
	assert.Error(t, c.Validate())
}

func TestWeightsValidateAndNormalize(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.NoError(t, RadiusOnly().Validate())
	assert.ErrorIs(t, Weights{Proximity: 0.5, Rating: 0.4}.Validate(), ErrValidation)
	assert.ErrorIs(t, Weights{Proximity: 1.2, Rating: -0.2}.Validate(), ErrValidation)

	n, err := Weights{Proximity: 2, Rating: 1, Acceptance: 1}.Normalize()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, n.Proximity, 1e-12)
	assert.NoError(t, n.Validate())

	_, err = Weights{}.Normalize()
	assert.ErrorIs(t, err, ErrValidation)

	cfg := Config{Waves: DefaultBands(), Weights: Weights{Proximity: 4, Rating: 1}, NormalizeWeights: true}
	w, err := cfg.EffectiveWeights()
	require.NoError(t, err)
	assert.InDelta(t, 0.8, w.Proximity, 1e-12)
	cfg.NormalizeWeights = false
	assert.Error(t, cfg.Validate())
}
