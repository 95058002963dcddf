// Package scenarios replays scripted hero fleets against the dispatch
// engine. A scenario file places heroes around a pickup point, scripts how
// each one answers its offer and states the expected outcome.
package scenarios

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

// Answer scripts what a hero does with an offer.
type Answer string

const (
	AnswerAccept  Answer = "accept"
	AnswerDecline Answer = "decline"
	AnswerIgnore  Answer = "ignore"
)

type HeroDef struct {
	ID       string   `yaml:"id"`
	NorthM   float64  `yaml:"north_m"`
	EastM    float64  `yaml:"east_m"`
	Online   *bool    `yaml:"online,omitempty"`
	Verified *bool    `yaml:"verified,omitempty"`
	BusyWith string   `yaml:"busy_with,omitempty"`
	Rating   *float64 `yaml:"rating,omitempty"`
	// StaleMinutes ages the reported location.
	StaleMinutes int      `yaml:"stale_minutes,omitempty"`
	ServiceTypes []string `yaml:"service_types,omitempty"`
	Answer       Answer   `yaml:"answer,omitempty"`
	DelayMS      int      `yaml:"delay_ms,omitempty"`
	// Unreachable makes offer delivery fail.
	Unreachable bool `yaml:"unreachable,omitempty"`
}

func orTrue(b *bool) bool { return b == nil || *b }

// ToModel places the hero relative to pickup.
func (h HeroDef) ToModel(at func(north, east float64) model.Point, now time.Time) model.Hero {
	return model.Hero{
		ID:           h.ID,
		Online:       orTrue(h.Online),
		Verified:     orTrue(h.Verified),
		CurrentJobID: h.BusyWith,
		ServiceTypes: h.ServiceTypes,
		PushToken:    "tok-" + h.ID,
		Stats:        model.HeroStats{Rating: h.Rating},
		Location: &model.Location{
			Point:     at(h.NorthM, h.EastM),
			UpdatedAt: now.Add(-time.Duration(h.StaleMinutes) * time.Minute),
		},
	}
}

type Expected struct {
	Result     model.WaveResult `yaml:"result"`
	AcceptedBy string           `yaml:"accepted_by,omitempty"`
	// Notified lists every offered hero, sorted by id.
	Notified []string `yaml:"notified,omitempty"`
	Waves    int      `yaml:"waves,omitempty"`
}

type BandDef struct {
	MinRadiusM     float64 `yaml:"min_radius_m"`
	MaxRadiusM     float64 `yaml:"max_radius_m"`
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
	MaxHeroes      int     `yaml:"max_heroes"`
}

type WeightsDef struct {
	Proximity      float64 `yaml:"proximity"`
	Rating         float64 `yaml:"rating"`
	Acceptance     float64 `yaml:"acceptance"`
	Responsiveness float64 `yaml:"responsiveness"`
}

type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	ServiceType string      `yaml:"service_type,omitempty"`
	Pickup      model.Point `yaml:"pickup"`
	Waves       []BandDef   `yaml:"waves,omitempty"`
	Weights     *WeightsDef `yaml:"weights,omitempty"`
	Heroes      []HeroDef   `yaml:"heroes"`
	Expected    Expected    `yaml:"expected"`
}

// Config returns the dispatch configuration of the scenario. Without
// explicit waves the default rings are used with a 50 ms answer window.
func (s *Scenario) Config() dispatch.Config {
	cfg := dispatch.DefaultConfig()
	if len(s.Waves) > 0 {
		cfg.Waves = make([]dispatch.Band, len(s.Waves))
		for i, b := range s.Waves {
			cfg.Waves[i] = dispatch.Band(b)
		}
	} else {
		for i := range cfg.Waves {
			cfg.Waves[i].TimeoutSeconds = 0.05
		}
	}
	if s.Weights != nil {
		cfg.Weights = dispatch.Weights(*s.Weights)
		cfg.NormalizeWeights = true
	}
	return cfg
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s: name is required", path)
	}
	for _, h := range sc.Heroes {
		switch h.Answer {
		case "", AnswerAccept, AnswerDecline, AnswerIgnore:
		default:
			return nil, fmt.Errorf("scenario %s: hero %s: unknown answer %q", path, h.ID, h.Answer)
		}
	}
	return &sc, nil
}
