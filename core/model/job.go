package model

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobIdle              JobStatus = "idle"
	JobSearching         JobStatus = "searching"
	JobAssigned          JobStatus = "assigned"
	JobNoHeroesAvailable JobStatus = "no_heroes_available"
	JobEnRoute           JobStatus = "en_route"
	JobArrived           JobStatus = "arrived"
	JobInProgress        JobStatus = "in_progress"
	JobCompleted         JobStatus = "completed"
	JobCancelled         JobStatus = "cancelled"
)

// Bound reports whether a job in this state must carry a hero binding.
func (s JobStatus) Bound() bool {
	switch s {
	case JobAssigned, JobEnRoute, JobArrived, JobInProgress, JobCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobCancelled, JobNoHeroesAvailable:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobIdle, JobSearching, JobAssigned, JobNoHeroesAvailable, JobEnRoute,
		JobArrived, JobInProgress, JobCompleted, JobCancelled:
		return true
	}
	return false
}

// StatusChange is one entry of a job's status history.
type StatusChange struct {
	Status JobStatus `json:"status"`
	At     time.Time `json:"at"`
	HeroID string    `json:"hero_id,omitempty"`
}

// Job is a customer service request.
type Job struct {
	ID             string         `json:"id"`
	CustomerID     string         `json:"customer_id"`
	Status         JobStatus      `json:"status"`
	Pickup         Point          `json:"pickup"`
	ServiceType    string         `json:"service_type"`
	HeroID         string         `json:"hero_id,omitempty"`
	NotifiedHeroes HeroSet        `json:"notified_heroes"`
	DeclinedHeroes HeroSet        `json:"declined_heroes"`
	CurrentWave    int            `json:"current_wave"`
	StatusHistory  []StatusChange `json:"status_history,omitempty"`

	CreatedAt          time.Time  `json:"created_at"`
	DispatchStartedAt  *time.Time `json:"dispatch_started_at,omitempty"`
	AssignedAt         *time.Time `json:"assigned_at,omitempty"`
	EnRouteAt          *time.Time `json:"en_route_at,omitempty"`
	ArrivedAt          *time.Time `json:"arrived_at,omitempty"`
	ServiceStartedAt   *time.Time `json:"service_started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	DispatchFinishedAt *time.Time `json:"dispatch_finished_at,omitempty"`
}

// Validate checks the fields required to dispatch the job.
func (j Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if j.Pickup.Lat < -90 || j.Pickup.Lat > 90 || j.Pickup.Lng < -180 || j.Pickup.Lng > 180 {
		return fmt.Errorf("pickup out of range: %v", j.Pickup)
	}
	if j.Status != "" && !j.Status.Valid() {
		return fmt.Errorf("unknown status %q", j.Status)
	}
	return nil
}

// CheckBinding verifies that HeroID is set exactly when the status requires it.
// Cancelled jobs may or may not carry the hero that was released.
func (j Job) CheckBinding() error {
	if j.Status == JobCancelled {
		return nil
	}
	if j.Status.Bound() != (j.HeroID != "") {
		return fmt.Errorf("job %s: status %s with hero %q", j.ID, j.Status, j.HeroID)
	}
	return nil
}

// Record appends a status change to the history and sets Status.
func (j *Job) Record(s JobStatus, at time.Time, heroID string) {
	j.Status = s
	j.StatusHistory = append(j.StatusHistory, StatusChange{Status: s, At: at, HeroID: heroID})
}

// Excluded returns the union of notified and declined heroes.
func (j Job) Excluded() HeroSet {
	return j.NotifiedHeroes.Union(j.DeclinedHeroes)
}

// Customer is the owner of a job.
type Customer struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	PushToken string `json:"push_token,omitempty"`
}
