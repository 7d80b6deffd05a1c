package domain

import "time"

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RawSample is a single GPS fix as reported by the courier device. Optional
// fields are nil when the device did not send them.
type RawSample struct {
	Coordinate
	Speed     *float64  `json:"speed,omitempty"`    // km/h
	Bearing   *float64  `json:"bearing,omitempty"`  // degrees
	Accuracy  *float64  `json:"accuracy,omitempty"` // meters
	Timestamp time.Time `json:"timestamp"`
}

type SnappedPoint struct {
	Coordinate
	OriginalIndex *int   `json:"original_index,omitempty"`
	PlaceID       string `json:"place_id,omitempty"`
}

type SmoothedLocation struct {
	Coordinate
	Speed     float64   `json:"speed"`
	Bearing   float64   `json:"bearing"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

type ProcessedLocation struct {
	Lat               float64   `json:"lat"`
	Lng               float64   `json:"lng"`
	Bearing           float64   `json:"bearing"`
	Speed             float64   `json:"speed"`
	Progress          float64   `json:"progress"`
	DistanceCovered   float64   `json:"distance_covered"`
	RemainingDistance float64   `json:"remaining_distance"`
	Timestamp         time.Time `json:"timestamp"`
	Snapped           bool      `json:"snapped"`
	OnRoute           bool      `json:"on_route"`
}

// LocationUpdate is what gets broadcast to trackers after processing.
type LocationUpdate struct {
	EventID  string            `json:"event_id"`
	RiderID  string            `json:"rider_id"`
	OrderID  string            `json:"order_id"`
	Location ProcessedLocation `json:"location"`
}

func Float(v float64) *float64 {
	return &v
}
