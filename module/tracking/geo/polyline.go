package geo

import (
	"math"
	"strings"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
)

const (
	polylineFactor = 1e5
	polylineScale  = 1e-5
)

// DecodePolyline decodes a string in the encoded polyline algorithm format
// (5 bit chunks, 1e-5 precision). Input is not validated: a trailing
// incomplete chunk is dropped and anything else malformed decodes to whatever
// the arithmetic produces.
func DecodePolyline(encoded string) []domain.Coordinate {
	var points []domain.Coordinate
	index, lat, lng := 0, 0, 0

	for index < len(encoded) {
		dLat, next, ok := decodeValue(encoded, index)
		if !ok {
			return points
		}
		dLng, next, ok := decodeValue(encoded, next)
		if !ok {
			return points
		}
		index = next

		lat += dLat
		lng += dLng
		points = append(points, domain.Coordinate{
			Lat: float64(lat) * polylineScale,
			Lng: float64(lng) * polylineScale,
		})
	}
	return points
}

func decodeValue(encoded string, index int) (delta, next int, ok bool) {
	shift, result := 0, 0
	for {
		if index >= len(encoded) {
			return 0, index, false
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), index, true
	}
	return result >> 1, index, true
}

// EncodePolyline is the inverse of DecodePolyline.
func EncodePolyline(points []domain.Coordinate) string {
	var sb strings.Builder
	prevLat, prevLng := 0, 0
	for _, p := range points {
		lat := int(math.Round(p.Lat * polylineFactor))
		lng := int(math.Round(p.Lng * polylineFactor))
		encodeValue(&sb, lat-prevLat)
		encodeValue(&sb, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return sb.String()
}

func encodeValue(sb *strings.Builder, delta int) {
	v := delta << 1
	if delta < 0 {
		v = ^v
	}
	for v >= 0x20 {
		sb.WriteByte(byte((0x20 | (v & 0x1f)) + 63))
		v >>= 5
	}
	sb.WriteByte(byte(v + 63))
}
