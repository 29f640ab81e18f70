// Package geo provides the spherical primitives the proximity engine is
// built on: great-circle distance, coarse grid bucketing, and distance
// labels for display.
package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// Earth radius constants (mean radius).
const (
	EarthRadiusMeters = 6371000.0
	EarthRadiusKm     = 6371.0
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceMeters calculates the great-circle distance between two points
// in meters.
func DistanceMeters(a, b Point) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lon)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// DistanceKm calculates the great-circle distance between two points in
// kilometers.
func DistanceKm(a, b Point) float64 {
	return DistanceMeters(a, b) / 1000.0
}

// Offset returns the point reached by traveling the given distance from p
// along the given initial bearing (degrees, 0 is north, 90 is east).
func Offset(p Point, bearingDeg, meters float64) Point {
	bearingRad := bearingDeg * math.Pi / 180
	angular := meters / EarthRadiusMeters

	latRad := p.Lat * math.Pi / 180
	lonRad := p.Lon * math.Pi / 180

	lat2 := math.Asin(math.Sin(latRad)*math.Cos(angular) +
		math.Cos(latRad)*math.Sin(angular)*math.Cos(bearingRad))
	lon2 := lonRad + math.Atan2(
		math.Sin(bearingRad)*math.Sin(angular)*math.Cos(latRad),
		math.Cos(angular)-math.Sin(latRad)*math.Sin(lat2))

	return Point{
		Lat: lat2 * 180 / math.Pi,
		Lon: lon2 * 180 / math.Pi,
	}
}
