package service

import (
	"github.com/nandanugg/courier-tracking/module/tracking/domain"
	"github.com/nandanugg/courier-tracking/module/tracking/geo"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/store"
)

type NearestMatch struct {
	Point          domain.Coordinate `json:"point"`
	Index          int               `json:"index"`
	DistanceMeters float64           `json:"distance_meters"`
}

// NearestPoint scans points linearly for the vertex closest to loc. On ties
// the first index wins. It reports false when points is empty.
func NearestPoint(loc domain.Coordinate, points []domain.Coordinate) (NearestMatch, bool) {
	if len(points) == 0 {
		return NearestMatch{}, false
	}

	best := NearestMatch{Point: points[0], Index: 0, DistanceMeters: geo.DistanceMeters(loc, points[0])}
	for i := 1; i < len(points); i++ {
		d := geo.DistanceMeters(loc, points[i])
		if d < best.DistanceMeters {
			best = NearestMatch{Point: points[i], Index: i, DistanceMeters: d}
		}
	}
	return best, true
}

// RouteMatcher projects locations onto the reference route cached for an
// order. Matching is a global nearest-vertex search with no memory between
// calls, so a noisy fix can make progress jump forward or back.
type RouteMatcher struct {
	routes *store.RouteStore
}

func NewRouteMatcher(routes *store.RouteStore) *RouteMatcher {
	return &RouteMatcher{routes: routes}
}

// Progress reports false when no route is cached for orderID, meaning the
// rider is not on any tracked route.
func (m *RouteMatcher) Progress(orderID string, loc domain.Coordinate) (*domain.RouteProgress, bool) {
	route, ok := m.routes.Get(orderID)
	if !ok {
		return nil, false
	}
	return RouteProgress(route, loc)
}

// RouteProgress computes how far along route the location is.
func RouteProgress(route *domain.RoutePolyline, loc domain.Coordinate) (*domain.RouteProgress, bool) {
	match, ok := NearestPoint(loc, route.Points)
	if !ok {
		return nil, false
	}

	covered := geo.PathLength(route.Points[:match.Index+1])

	fraction := 0.0
	if route.TotalDistance != 0 {
		fraction = clamp(covered/route.TotalDistance, 0, 1)
	}

	next := min(match.Index+1, len(route.Points)-1)

	return &domain.RouteProgress{
		ProgressFraction:        fraction,
		CurrentPoint:            match.Point,
		NextPoint:               route.Points[next],
		DistanceCoveredMeters:   covered,
		TotalDistanceMeters:     route.TotalDistance,
		RemainingDistanceMeters: route.TotalDistance - covered,
	}, true
}
