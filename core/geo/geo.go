// Package geo computes great-circle distances between coordinates.
package geo

import (
	"math"

	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

// EarthRadiusM is the mean Earth radius used by Distance.
const EarthRadiusM = 6371000.0

// MetersPerMile converts the mile radii used by the product to meters.
const MetersPerMile = 1609.34

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b model.Point) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Pow(math.Sin(dLng/2), 2)
	return EarthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Within reports whether d lies in the inclusive band [min, max].
func Within(d, min, max float64) bool {
	return d >= min && d <= max
}

// Offset returns the point reached by moving north and east meters from p.
// It is accurate for the short distances used in tests and simulation.
func Offset(p model.Point, north, east float64) model.Point {
	lat := p.Lat + north/EarthRadiusM*180/math.Pi
	lng := p.Lng + east/(EarthRadiusM*math.Cos(p.Lat*math.Pi/180))*180/math.Pi
	return model.Point{Lat: lat, Lng: lng}
}
