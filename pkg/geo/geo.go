package geo

import (
	"math"

	"companioncare/pkg/models"
)

const earthRadiusKm = 6371

// DistanceKm returns the haversine great-circle distance between two points.
func DistanceKm(a, b models.LatLng) float64 {
	dLat := (b.Latitude - a.Latitude) * (math.Pi / 180)
	dLon := (b.Longitude - a.Longitude) * (math.Pi / 180)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Latitude*(math.Pi/180))*
			math.Cos(b.Latitude*(math.Pi/180))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// IsClose reports whether two points are within thresholdKm of each other.
func IsClose(a, b models.LatLng, thresholdKm float64) bool {
	return DistanceKm(a, b) <= thresholdKm
}
