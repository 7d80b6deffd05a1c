package domain

// RouteHints carries the pickup and drop-off coordinates used to request a
// reference route for an order.
type RouteHints struct {
	Restaurant *Coordinate `json:"restaurant,omitempty"`
	Customer   *Coordinate `json:"customer,omitempty"`
}

func (h *RouteHints) Present() bool {
	return h != nil && h.Restaurant != nil && h.Customer != nil
}

type RoutePolyline struct {
	Points          []Coordinate `json:"points"`
	TotalDistance   float64      `json:"total_distance"` // meters
	EncodedPolyline string       `json:"encoded_polyline"`
	DurationSeconds int          `json:"duration_seconds"`
}

type RouteProgress struct {
	ProgressFraction        float64    `json:"progress_fraction"`
	CurrentPoint            Coordinate `json:"current_point"`
	NextPoint               Coordinate `json:"next_point"`
	DistanceCoveredMeters   float64    `json:"distance_covered_meters"`
	TotalDistanceMeters     float64    `json:"total_distance_meters"`
	RemainingDistanceMeters float64    `json:"remaining_distance_meters"`
}

type DirectionsResult struct {
	EncodedPolyline string
	DurationSeconds int
	Points          []Coordinate
}
