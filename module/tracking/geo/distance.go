package geo

import (
	"math"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
)

const earthRadiusMeters = 6371000

// DistanceMeters returns the haversine great-circle distance between a and b.
func DistanceMeters(a, b domain.Coordinate) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BearingDegrees returns the initial compass bearing from one point toward
// another, normalized into [0, 360).
func BearingDegrees(from, to domain.Coordinate) float64 {
	latFrom := toRad(from.Lat)
	latTo := toRad(to.Lat)
	dLng := toRad(to.Lng - from.Lng)

	y := math.Sin(dLng) * math.Cos(latTo)
	x := math.Cos(latFrom)*math.Sin(latTo) - math.Sin(latFrom)*math.Cos(latTo)*math.Cos(dLng)
	b := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(b+360, 360)
}

// PathLength sums consecutive haversine distances along points.
func PathLength(points []domain.Coordinate) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += DistanceMeters(points[i-1], points[i])
	}
	return total
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
