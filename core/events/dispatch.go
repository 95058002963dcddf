package events

import (
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

// WaveStarted is published once per executed wave.
type WaveStarted struct {
	JobID      string
	Wave       int
	MinRadiusM float64
	MaxRadiusM float64
	Candidates int
	LookupErr  error
}

// HeroNotified is published for each offer sent in a wave.
type HeroNotified struct {
	JobID     string
	HeroID    string
	Wave      int
	Score     float64
	DistanceM float64
	Delivered bool
}

// OfferAnswered is published after an accept or decline reached the arbiter.
type OfferAnswered struct {
	JobID    string
	HeroID   string
	Accepted bool
	Reason   string
	Err      error
}

// JobAssigned is published after an accept commits.
type JobAssigned struct {
	JobID  string
	HeroID string
	At     time.Time
}

// DispatchFinished is published when a dispatch loop ends.
type DispatchFinished struct {
	JobID       string
	ServiceType string
	Result      model.WaveResult
	Waves       int
	Notified    int
	AcceptedBy  string
	Duration    time.Duration
}

// JobStatusChanged is published after a lifecycle transition commits.
type JobStatusChanged struct {
	JobID  string
	HeroID string
	From   model.JobStatus
	To     model.JobStatus
}
