package model

import "time"

// HeroStats holds the historical performance signals used for ranking.
// Nil pointers mean the value was never recorded.
type HeroStats struct {
	Rating             *float64   `json:"rating,omitempty"`
	AcceptanceRate     *float64   `json:"acceptance_rate,omitempty"`
	AvgResponseSeconds *float64   `json:"avg_response_seconds,omitempty"`
	TotalOffered       int        `json:"total_offered"`
	TotalAccepted      int        `json:"total_accepted"`
	TotalJobs          int        `json:"total_jobs"`
	LastDeclinedAt     *time.Time `json:"last_declined_at,omitempty"`
}

// RecordOffer counts an answered offer and refreshes the acceptance rate.
func (s *HeroStats) RecordOffer(accepted bool) {
	s.TotalOffered++
	if accepted {
		s.TotalAccepted++
	}
	rate := float64(s.TotalAccepted) / float64(s.TotalOffered)
	s.AcceptanceRate = &rate
}

// Hero is a field worker that can be dispatched to jobs.
type Hero struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name,omitempty"`
	Online       bool      `json:"online"`
	Verified     bool      `json:"verified"`
	CurrentJobID string    `json:"current_job_id,omitempty"`
	Location     *Location `json:"location,omitempty"`
	ServiceTypes []string  `json:"service_types,omitempty"`
	PushToken    string    `json:"push_token,omitempty"`
	Stats        HeroStats `json:"stats"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Available reports whether the hero may be offered a job.
func (h Hero) Available() bool {
	return h.Online && h.Verified && h.CurrentJobID == ""
}

// Supports reports whether the hero performs serviceType. Heroes that declare
// no service types accept everything.
func (h Hero) Supports(serviceType string) bool {
	if len(h.ServiceTypes) == 0 {
		return true
	}
	for _, t := range h.ServiceTypes {
		if t == serviceType {
			return true
		}
	}
	return false
}
