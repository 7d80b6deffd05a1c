package google

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/maps"
)

var _ maps.RoadSnapper = (*Client)(nil)

type snapResponse struct {
	SnappedPoints []struct {
		Location struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
		OriginalIndex *int   `json:"originalIndex"`
		PlaceID       string `json:"placeId"`
	} `json:"snappedPoints"`
}

// SnapToRoads snaps path to the road network, splitting it into batches of
// at most maps.MaxSnapBatch points. Original indexes in the result refer to
// positions in the full path. The result is not guaranteed to have one point
// per input point.
func (c *Client) SnapToRoads(ctx context.Context, apiKey string, path []domain.Coordinate) ([]domain.SnappedPoint, error) {
	var out []domain.SnappedPoint
	for start := 0; start < len(path); start += maps.MaxSnapBatch {
		end := min(start+maps.MaxSnapBatch, len(path))

		batch, err := c.snapBatch(ctx, apiKey, path[start:end])
		if err != nil {
			return nil, fmt.Errorf("snap batch %d-%d: %w", start, end, err)
		}
		for i := range batch {
			if batch[i].OriginalIndex != nil {
				idx := *batch[i].OriginalIndex + start
				batch[i].OriginalIndex = &idx
			}
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *Client) snapBatch(ctx context.Context, apiKey string, path []domain.Coordinate) ([]domain.SnappedPoint, error) {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = formatLatLng(p)
	}

	query := url.Values{}
	query.Set("path", strings.Join(parts, "|"))
	query.Set("interpolate", strconv.FormatBool(c.interpolate))
	query.Set("key", apiKey)

	var resp snapResponse
	if err := c.getJSON(ctx, c.roadsURL+"/v1/snapToRoads", query, &resp); err != nil {
		return nil, err
	}

	points := make([]domain.SnappedPoint, 0, len(resp.SnappedPoints))
	for _, sp := range resp.SnappedPoints {
		points = append(points, domain.SnappedPoint{
			Coordinate:    domain.Coordinate{Lat: sp.Location.Latitude, Lng: sp.Location.Longitude},
			OriginalIndex: sp.OriginalIndex,
			PlaceID:       sp.PlaceID,
		})
	}
	return points, nil
}
