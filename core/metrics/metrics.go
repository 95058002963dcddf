package metrics

import (
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

// DispatchResult summarises one finished dispatch.
type DispatchResult struct {
	JobID       string
	ServiceType string
	Result      model.WaveResult
	Waves       int
	Notified    int
	AcceptedBy  string
	Duration    time.Duration
	Time        time.Time
}

// MetricsSink records dispatch results for observability purposes.
type MetricsSink interface {
	RecordDispatchResult(results []DispatchResult) error
}

// WaveEvent describes one executed wave.
type WaveEvent struct {
	JobID      string
	Wave       int
	MaxRadiusM float64
	Candidates int
	Failed     bool
	Time       time.Time
}

// WaveRecorder records executed waves.
type WaveRecorder interface {
	RecordWave(ev WaveEvent) error
}

// OfferEvent is an offer sent to a hero.
type OfferEvent struct {
	JobID     string
	HeroID    string
	Wave      int
	Score     float64
	DistanceM float64
	Delivered bool
	Time      time.Time
}

// OfferRecorder records offers.
type OfferRecorder interface {
	RecordOffer(ev OfferEvent) error
}

// AnswerEvent is a hero answering an offer.
type AnswerEvent struct {
	JobID    string
	HeroID   string
	Accepted bool
	// Outcome is "ok" or the failure reason.
	Outcome string
	Time    time.Time
}

// AnswerRecorder records accept/decline answers.
type AnswerRecorder interface {
	RecordAnswer(ev AnswerEvent) error
}

// FleetSizeRecorder records the number of heroes online with a fresh location.
type FleetSizeRecorder interface {
	RecordFleetSize(size int) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatchResult([]DispatchResult) error { return nil }
func (NopSink) RecordWave(WaveEvent) error                  { return nil }
func (NopSink) RecordOffer(OfferEvent) error                { return nil }
func (NopSink) RecordAnswer(AnswerEvent) error              { return nil }
func (NopSink) RecordFleetSize(int) error                   { return nil }
