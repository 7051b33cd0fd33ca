package geo

import (
	"math"
)

// earthRadiusM is the mean Earth radius in meters.
const earthRadiusM = 6371000.0

// Point is a geographic position in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(radians(a.Latitude))*
			math.Cos(radians(b.Latitude))*
			math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// MetersToNM converts a distance in meters to nautical miles.
func MetersToNM(m float64) float64 {
	return m / 1852.0
}

// FeetToMeters converts an altitude in feet to meters.
func FeetToMeters(feet float64) float64 {
	return feet * 0.3048
}

// KnotsToKmh converts a ground speed in knots to km/h.
func KnotsToKmh(knots float64) float64 {
	return knots * 1.852
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
