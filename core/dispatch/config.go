package dispatch

import (
	"fmt"
	"math"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/geo"
)

// Band is one wave of the schedule: the distance ring searched, how long
// notified heroes get to answer and how many are notified at most.
type Band struct {
	MinRadiusM     float64 `json:"min_radius_m"`
	MaxRadiusM     float64 `json:"max_radius_m"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
	MaxHeroes      int     `json:"max_heroes"`
}

// Timeout returns the wave sleep.
func (b Band) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds * float64(time.Second))
}

// Contains reports whether d lies inside the band, bounds included.
func (b Band) Contains(d float64) bool {
	return geo.Within(d, b.MinRadiusM, b.MaxRadiusM)
}

// Weights are the scorer coefficients.
type Weights struct {
	Proximity      float64 `json:"proximity"`
	Rating         float64 `json:"rating"`
	Acceptance     float64 `json:"acceptance"`
	Responsiveness float64 `json:"responsiveness"`
}

const weightTolerance = 1e-6

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{Proximity: 0.40, Rating: 0.25, Acceptance: 0.20, Responsiveness: 0.15}
}

// RadiusOnly ranks purely by distance.
func RadiusOnly() Weights { return Weights{Proximity: 1} }

func (w Weights) vector() []float64 {
	return []float64{w.Proximity, w.Rating, w.Acceptance, w.Responsiveness}
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Proximity + w.Rating + w.Acceptance + w.Responsiveness
}

// Validate rejects negative, non-finite or non-normalised weight sets.
func (w Weights) Validate() error {
	for _, v := range w.vector() {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return validationf("weights must be finite and non-negative: %+v", w)
		}
	}
	if math.Abs(w.Sum()-1) > weightTolerance {
		return validationf("weights must sum to 1, got %.6f", w.Sum())
	}
	return nil
}

// Normalize rescales a non-negative weight set so it sums to 1.
func (w Weights) Normalize() (Weights, error) {
	for _, v := range w.vector() {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Weights{}, validationf("weights must be finite and non-negative: %+v", w)
		}
	}
	sum := w.Sum()
	if sum <= 0 {
		return Weights{}, validationf("weights are all zero")
	}
	return Weights{
		Proximity:      w.Proximity / sum,
		Rating:         w.Rating / sum,
		Acceptance:     w.Acceptance / sum,
		Responsiveness: w.Responsiveness / sum,
	}, nil
}

// Config is the runtime dispatch configuration.
type Config struct {
	Waves   []Band  `json:"waves"`
	Weights Weights `json:"weights"`
	// NormalizeWeights rescales Weights instead of rejecting a set that does
	// not sum to 1.
	NormalizeWeights   bool    `json:"normalize_weights"`
	LocationTTLSeconds float64 `json:"location_ttl_seconds"`
}

const (
	defaultMaxHeroes   = 10
	defaultWaveSeconds = 20
	defaultLocationTTL = 5 * time.Minute
)

// DefaultBands returns rings at 2, 3, 5, 7 and 9 miles with 20 s each.
func DefaultBands() []Band {
	miles := []float64{2, 3, 5, 7, 9}
	out := make([]Band, len(miles))
	prev := 0.0
	for i, m := range miles {
		max := m * geo.MetersPerMile
		out[i] = Band{MinRadiusM: prev, MaxRadiusM: max, TimeoutSeconds: defaultWaveSeconds, MaxHeroes: defaultMaxHeroes}
		prev = max
	}
	return out
}

// DefaultConfig returns the default schedule and weights.
func DefaultConfig() Config {
	return Config{
		Waves:              DefaultBands(),
		Weights:            DefaultWeights(),
		LocationTTLSeconds: defaultLocationTTL.Seconds(),
	}
}

// SetDefaults fills zero values. An explicitly empty Waves list is kept so
// that it can be rejected by Schedule.
func (c *Config) SetDefaults() {
	if c.Waves == nil {
		c.Waves = DefaultBands()
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.LocationTTLSeconds <= 0 {
		c.LocationTTLSeconds = defaultLocationTTL.Seconds()
	}
}

// LocationTTL returns how long a reported location stays fresh.
func (c Config) LocationTTL() time.Duration {
	if c.LocationTTLSeconds <= 0 {
		return defaultLocationTTL
	}
	return time.Duration(c.LocationTTLSeconds * float64(time.Second))
}

// Schedule validates the wave list and returns a copy safe to iterate.
func (c Config) Schedule() ([]Band, error) {
	if len(c.Waves) == 0 {
		return nil, validationf("empty wave schedule")
	}
	out := make([]Band, len(c.Waves))
	copy(out, c.Waves)
	for i, b := range out {
		if b.MinRadiusM < 0 || b.MaxRadiusM <= 0 || b.MinRadiusM > b.MaxRadiusM {
			return nil, validationf("wave %d: bad band [%v, %v]", i, b.MinRadiusM, b.MaxRadiusM)
		}
		if b.TimeoutSeconds < 0 {
			return nil, validationf("wave %d: negative timeout", i)
		}
		if b.MaxHeroes <= 0 {
			return nil, validationf("wave %d: max_heroes must be positive", i)
		}
		if i > 0 && (b.MinRadiusM < out[i-1].MinRadiusM || b.MaxRadiusM < out[i-1].MaxRadiusM) {
			return nil, validationf("wave %d: bands must be non-decreasing", i)
		}
	}
	return out, nil
}

// EffectiveWeights returns the weights to score with, normalising them when
// configured to.
func (c Config) EffectiveWeights() (Weights, error) {
	if c.NormalizeWeights {
		return c.Weights.Normalize()
	}
	if err := c.Weights.Validate(); err != nil {
		return Weights{}, err
	}
	return c.Weights, nil
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if _, err := c.Schedule(); err != nil {
		return fmt.Errorf("dispatch config: %w", err)
	}
	if _, err := c.EffectiveWeights(); err != nil {
		return fmt.Errorf("dispatch config: %w", err)
	}
	return nil
}
