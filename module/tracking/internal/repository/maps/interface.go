package maps

import (
	"context"
	"errors"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
)

// MaxSnapBatch is the largest path the road-snap provider accepts per request.
const MaxSnapBatch = 100

var ErrNoRoute = errors.New("no route found")

type RoadSnapper interface {
	SnapToRoads(ctx context.Context, apiKey string, path []domain.Coordinate) ([]domain.SnappedPoint, error)
}

type DirectionsProvider interface {
	Directions(ctx context.Context, apiKey string, origin domain.Coordinate, waypoint *domain.Coordinate, destination domain.Coordinate) (*domain.DirectionsResult, error)
}
