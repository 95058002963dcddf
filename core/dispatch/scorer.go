package dispatch

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

// Defaults used when a hero has no recorded statistic.
const (
	DefaultRating          = 5.0
	DefaultAcceptanceRate  = 0.5
	DefaultResponseSeconds = 30.0
	responseHorizonSeconds = 60.0
)

// Candidate is a hero eligible for the current wave.
type Candidate struct {
	Hero      model.Hero
	DistanceM float64
	Score     float64
}

// Scorer ranks candidates with a fixed weight set.
type Scorer struct {
	weights []float64
}

// NewScorer validates w and returns a scorer using it.
func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w.vector()}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// factors returns the normalised sub-scores in weight order.
func factors(c Candidate, band Band) []float64 {
	prox := 0.0
	if band.MaxRadiusM > 0 {
		prox = clamp01(1 - c.DistanceM/band.MaxRadiusM)
	}
	st := c.Hero.Stats
	rating := DefaultRating
	if st.Rating != nil {
		rating = *st.Rating
	}
	acc := DefaultAcceptanceRate
	if st.AcceptanceRate != nil {
		acc = *st.AcceptanceRate
	}
	resp := DefaultResponseSeconds
	if st.AvgResponseSeconds != nil {
		resp = *st.AvgResponseSeconds
	}
	return []float64{
		prox,
		clamp01((rating - 1) / 4),
		clamp01(acc),
		clamp01(1 - resp/responseHorizonSeconds),
	}
}

// Score returns the weighted score of c in band, in [0, 1].
func (s *Scorer) Score(c Candidate, band Band) float64 {
	return floats.Dot(s.weights, factors(c, band))
}

// Rank scores every candidate, sorts by descending score with ties broken by
// hero id, and keeps at most limit entries (all when limit <= 0).
func (s *Scorer) Rank(cands []Candidate, band Band, limit int) []Candidate {
	for i := range cands {
		cands[i].Score = s.Score(cands[i], band)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].Hero.ID < cands[j].Hero.ID
	})
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	return cands
}
