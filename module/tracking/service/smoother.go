package service

import (
	"time"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
	"github.com/nandanugg/courier-tracking/module/tracking/geo"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/store"
)

const (
	DefaultSpeedKmh       = 20
	DefaultBearingDegrees = 0
	DefaultAccuracyMeters = 50

	minSpeedKmh = 10
	maxSpeedKmh = 45
)

// Smoother stabilizes a rider's position using the sliding window kept in
// the history store.
type Smoother struct {
	history *store.HistoryStore
	now     func() time.Time
}

func NewSmoother(history *store.HistoryStore) *Smoother {
	return &Smoother{history: history, now: time.Now}
}

// Smooth records sample for riderID and returns the stabilized location.
//
// With a single buffered sample the coordinate, bearing and accuracy are
// returned as given. Otherwise the coordinate is the plain mean of the whole
// window (recent samples are not weighted more) and the bearing is derived
// from the two newest samples. Speed is always the mean of positive buffered
// speeds clamped to [10, 45] km/h, or 20 km/h when none are known.
func (s *Smoother) Smooth(riderID string, sample domain.RawSample) domain.SmoothedLocation {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.now()
	}
	window := s.history.Append(riderID, sample)

	out := domain.SmoothedLocation{
		Coordinate: sample.Coordinate,
		Speed:      smoothSpeed(window),
		Bearing:    valueOr(sample.Bearing, DefaultBearingDegrees),
		Accuracy:   valueOr(sample.Accuracy, DefaultAccuracyMeters),
		Timestamp:  sample.Timestamp,
	}
	if len(window) < 2 {
		return out
	}

	var sumLat, sumLng float64
	for _, w := range window {
		sumLat += w.Lat
		sumLng += w.Lng
	}
	n := float64(len(window))
	out.Coordinate = domain.Coordinate{Lat: sumLat / n, Lng: sumLng / n}

	prev, last := window[len(window)-2], window[len(window)-1]
	out.Bearing = geo.BearingDegrees(prev.Coordinate, last.Coordinate)
	return out
}

func smoothSpeed(window []domain.RawSample) float64 {
	var sum float64
	var n int
	for _, w := range window {
		if w.Speed != nil && *w.Speed > 0 {
			sum += *w.Speed
			n++
		}
	}
	if n == 0 {
		return DefaultSpeedKmh
	}
	return clamp(sum/float64(n), minSpeedKmh, maxSpeedKmh)
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
