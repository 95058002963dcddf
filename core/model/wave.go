package model

import "time"

// WaveResult is the terminal tag of a dispatch.
type WaveResult string

const (
	ResultInProgress WaveResult = "in_progress"
	ResultAccepted   WaveResult = "accepted"
	ResultNoHeroes   WaveResult = "no_heroes"
	// ResultCancelled closes the ledger of a job cancelled while searching.
	ResultCancelled WaveResult = "cancelled"
)

// WaveStatus tells whether the ledger is still being written.
type WaveStatus string

const (
	WaveInProgress WaveStatus = "in_progress"
	WaveCompleted  WaveStatus = "completed"
)

// WaveEntry describes one executed wave.
type WaveEntry struct {
	Index         int       `json:"index"`
	MinRadiusM    float64   `json:"min_radius_m"`
	MaxRadiusM    float64   `json:"max_radius_m"`
	StartedAt     time.Time `json:"started_at"`
	NotifiedCount int       `json:"notified_count"`
}

// WaveRecord is the per-job dispatch ledger.
type WaveRecord struct {
	JobID          string      `json:"job_id"`
	TotalWaves     int         `json:"total_waves"`
	CurrentWave    int         `json:"current_wave"`
	Waves          []WaveEntry `json:"waves"`
	NotifiedHeroes HeroSet     `json:"notified_heroes"`
	DeclinedHeroes HeroSet     `json:"declined_heroes"`
	Status         WaveStatus  `json:"status"`
	Result         WaveResult  `json:"result"`
	AcceptedBy     string      `json:"accepted_by,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// NewWaveRecord returns an in-progress ledger for jobID.
func NewWaveRecord(jobID string, totalWaves int, now time.Time) WaveRecord {
	return WaveRecord{
		JobID:          jobID,
		TotalWaves:     totalWaves,
		NotifiedHeroes: NewHeroSet(),
		DeclinedHeroes: NewHeroSet(),
		Status:         WaveInProgress,
		Result:         ResultInProgress,
		StartedAt:      now,
	}
}

// Terminal reports whether the ledger is closed.
func (w WaveRecord) Terminal() bool {
	return w.Result != ResultInProgress && w.Result != ""
}

// Complete closes the ledger with result. It is a no-op on a terminal record.
func (w *WaveRecord) Complete(result WaveResult, acceptedBy string, at time.Time) bool {
	if w.Terminal() {
		return false
	}
	w.Status = WaveCompleted
	w.Result = result
	w.AcceptedBy = acceptedBy
	w.CompletedAt = &at
	return true
}
