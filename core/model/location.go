package model

import "time"

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is the last position reported for a hero.
type Location struct {
	Point
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Fresh reports whether the location was updated within ttl of now.
func (l *Location) Fresh(now time.Time, ttl time.Duration) bool {
	if l == nil || l.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(l.UpdatedAt) <= ttl
}
