package simulator

import (
	"context"
	"sync"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	coremqtt "github.com/mozocode/On-The-Way-Rebuild/core/mqtt"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

// RunOptions configures RunFleet.
type RunOptions struct {
	Strategy Strategy
	Interval time.Duration
	DriftM   float64
}

// Totals sums the statistics of every hero.
type Totals struct {
	Offers, Accepted, Declined, Ignored, Won, Lost int64
}

// RunFleet runs one SimulatedHero per entry of heroes over client and blocks
// until ctx is done.
func RunFleet(ctx context.Context, client coremqtt.Client, topics coremqtt.Topics, heroes []model.Hero, opts RunOptions, log logger.Logger) Totals {
	log = logger.OrNop(log)
	sims := make([]*SimulatedHero, len(heroes))
	var wg sync.WaitGroup
	for i, h := range heroes {
		var pos model.Point
		if h.Location != nil {
			pos = h.Location.Point
		}
		sims[i] = &SimulatedHero{
			ID:       h.ID,
			Position: pos,
			Strategy: opts.Strategy,
			Interval: opts.Interval,
			DriftM:   opts.DriftM,
			Client:   client,
			Topics:   topics,
			Log:      log,
			Stats:    &Stats{},
		}
		wg.Add(1)
		go func(s *SimulatedHero) {
			defer wg.Done()
			if err := s.Run(ctx); err != nil {
				log.Errorf("%s: %v", s.ID, err)
			}
		}(sims[i])
	}
	wg.Wait()
	var t Totals
	for _, s := range sims {
		t.Offers += s.Stats.Offers.Load()
		t.Accepted += s.Stats.Accepted.Load()
		t.Declined += s.Stats.Declined.Load()
		t.Ignored += s.Stats.Ignored.Load()
		t.Won += s.Stats.Won.Load()
		t.Lost += s.Stats.Lost.Load()
	}
	return t
}
