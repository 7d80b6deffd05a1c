package google

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
	"github.com/nandanugg/courier-tracking/module/tracking/geo"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/maps"
)

var _ maps.DirectionsProvider = (*Client)(nil)

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			Duration struct {
				Value int `json:"value"`
			} `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

// Directions requests a driving route from origin to destination, optionally
// via waypoint. The duration is the sum of all leg durations.
func (c *Client) Directions(ctx context.Context, apiKey string, origin domain.Coordinate, waypoint *domain.Coordinate, destination domain.Coordinate) (*domain.DirectionsResult, error) {
	query := url.Values{}
	query.Set("origin", formatLatLng(origin))
	query.Set("destination", formatLatLng(destination))
	if waypoint != nil {
		query.Set("waypoints", formatLatLng(*waypoint))
	}
	query.Set("mode", "driving")
	query.Set("key", apiKey)

	var resp directionsResponse
	if err := c.getJSON(ctx, c.directionsURL+"/maps/api/directions/json", query, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return nil, maps.ErrNoRoute
	default:
		return nil, fmt.Errorf("directions status %s: %s", resp.Status, resp.ErrorMessage)
	}
	if len(resp.Routes) == 0 || resp.Routes[0].OverviewPolyline.Points == "" {
		return nil, maps.ErrNoRoute
	}

	route := resp.Routes[0]
	duration := 0
	for _, leg := range route.Legs {
		duration += leg.Duration.Value
	}

	return &domain.DirectionsResult{
		EncodedPolyline: route.OverviewPolyline.Points,
		DurationSeconds: duration,
		Points:          geo.DecodePolyline(route.OverviewPolyline.Points),
	}, nil
}
