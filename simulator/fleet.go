// Package simulator runs a fleet of fake heroes against the dispatch service
// over MQTT. Each hero reports its position and answers the offers it
// receives according to a Strategy.
package simulator

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/mozocode/On-The-Way-Rebuild/core/geo"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

// FleetConfig holds parameters for bulk fleet generation.
type FleetConfig struct {
	Size    int
	Center  model.Point
	RadiusM float64
	// ServiceTypes is assigned to every generated hero; empty means all.
	ServiceTypes []string
	Seed         int64
}

// GenerateFleet creates Size heroes with ids hero0001..heroNNNN spread
// uniformly over the disc of RadiusM around Center.
func GenerateFleet(cfg FleetConfig) []model.Hero {
	if cfg.Size <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	out := make([]model.Hero, cfg.Size)
	for i := range out {
		// sqrt keeps the density uniform over the disc
		r := cfg.RadiusM * math.Sqrt(rng.Float64())
		theta := 2 * math.Pi * rng.Float64()
		out[i] = model.Hero{
			ID:           fmt.Sprintf("hero%04d", i+1),
			DisplayName:  fmt.Sprintf("Sim Hero %d", i+1),
			Online:       true,
			Verified:     true,
			ServiceTypes: cfg.ServiceTypes,
			Location:     &model.Location{Point: geo.Offset(cfg.Center, r*math.Cos(theta), r*math.Sin(theta))},
		}
	}
	return out
}
