package dispatch

import (
	"context"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/geo"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
)

// CandidateSource looks up heroes eligible for a wave.
type CandidateSource interface {
	FindCandidates(ctx context.Context, pickup model.Point, band Band, serviceType string, exclude model.HeroSet) ([]Candidate, error)
}

// StoreCandidates queries the hero pool in a store and ranks the result.
type StoreCandidates struct {
	Store  store.Store
	Scorer *Scorer
	TTL    time.Duration
}

// FindCandidates returns ranked heroes inside band, excluding bound heroes,
// excluded ids, stale locations and heroes lacking serviceType.
func (s *StoreCandidates) FindCandidates(ctx context.Context, pickup model.Point, band Band, serviceType string, exclude model.HeroSet) ([]Candidate, error) {
	heroes, err := s.Store.QueryHeroes(ctx, store.HeroQuery{Online: store.Bool(true), Verified: store.Bool(true)})
	if err != nil {
		return nil, classify("query heroes", err)
	}
	now := s.Store.Now()
	out := make([]Candidate, 0, len(heroes))
	for _, h := range heroes {
		if h.CurrentJobID != "" || exclude.Has(h.ID) {
			continue
		}
		if !h.Location.Fresh(now, s.TTL) || !h.Supports(serviceType) {
			continue
		}
		d := geo.Distance(pickup, h.Location.Point)
		if !band.Contains(d) {
			continue
		}
		out = append(out, Candidate{Hero: h, DistanceM: d})
	}
	return s.Scorer.Rank(out, band, band.MaxHeroes), nil
}
