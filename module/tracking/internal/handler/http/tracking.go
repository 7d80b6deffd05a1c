package http

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
	"github.com/nandanugg/courier-tracking/module/tracking/geo"
)

type trackingPipeline interface {
	ProcessLocationUpdate(ctx context.Context, riderID, orderID string, raw domain.RawSample, hints *domain.RouteHints) domain.ProcessedLocation
	CacheRoutePolyline(orderID string, route domain.RoutePolyline) *domain.RoutePolyline
	GetCachedRoute(orderID string) (*domain.RoutePolyline, bool)
	ClearLocationHistory(riderID string) bool
	ClearRouteCache(orderID string) bool
	Progress(orderID string, loc domain.Coordinate) (*domain.RouteProgress, bool)
}

type broadcaster interface {
	Broadcast(ctx context.Context, riderID, orderID string, loc domain.ProcessedLocation) (*domain.LocationUpdate, error)
}

type coordinateRequest struct {
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
}

type locationRequest struct {
	OrderID    string             `json:"order_id" binding:"required"`
	Latitude   float64            `json:"latitude" binding:"min=-90,max=90"`
	Longitude  float64            `json:"longitude" binding:"min=-180,max=180"`
	Speed      *float64           `json:"speed" binding:"omitempty,min=0"`
	Bearing    *float64           `json:"bearing" binding:"omitempty,min=0,max=360"`
	Accuracy   *float64           `json:"accuracy" binding:"omitempty,min=0"`
	Timestamp  int64              `json:"timestamp" binding:"gte=0"`
	Restaurant *coordinateRequest `json:"restaurant" binding:"omitempty"`
	Customer   *coordinateRequest `json:"customer" binding:"omitempty"`
}

type routeRequest struct {
	EncodedPolyline string              `json:"encoded_polyline"`
	Points          []domain.Coordinate `json:"points"`
	TotalDistance   float64             `json:"total_distance" binding:"gte=0"`
	DurationSeconds int                 `json:"duration_seconds" binding:"gte=0"`
}

type TrackingHandler struct {
	pipeline trackingPipeline
	bcast    broadcaster
}

// NewTrackingHandler wires the HTTP surface. bcast may be nil, in which case
// locations posted over HTTP are processed but not broadcast.
func NewTrackingHandler(pipeline trackingPipeline, bcast broadcaster) *TrackingHandler {
	return &TrackingHandler{pipeline: pipeline, bcast: bcast}
}

func (h *TrackingHandler) Register(r *gin.RouterGroup) {
	r.POST("/riders/:rider_id/locations", h.PostLocation)
	r.DELETE("/riders/:rider_id/history", h.ClearHistory)
	r.PUT("/orders/:order_id/route", h.PutRoute)
	r.GET("/orders/:order_id/route", h.GetRoute)
	r.DELETE("/orders/:order_id/route", h.ClearRoute)
	r.GET("/orders/:order_id/progress", h.GetProgress)
}

func (h *TrackingHandler) PostLocation(c *gin.Context) {
	riderID := c.Param("rider_id")

	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw := domain.RawSample{
		Coordinate: domain.Coordinate{Lat: req.Latitude, Lng: req.Longitude},
		Speed:      req.Speed,
		Bearing:    req.Bearing,
		Accuracy:   req.Accuracy,
	}
	if req.Timestamp > 0 {
		raw.Timestamp = time.Unix(req.Timestamp, 0)
	}
	var hints *domain.RouteHints
	if req.Restaurant != nil || req.Customer != nil {
		hints = &domain.RouteHints{Restaurant: req.Restaurant.coordinate(), Customer: req.Customer.coordinate()}
	}

	ctx := c.Request.Context()
	loc := h.pipeline.ProcessLocationUpdate(ctx, riderID, req.OrderID, raw, hints)

	if h.bcast != nil {
		if _, err := h.bcast.Broadcast(ctx, riderID, req.OrderID, loc); err != nil {
			log.Printf("broadcast location error: %v", err)
		}
	}

	c.JSON(http.StatusOK, loc)
}

func (h *TrackingHandler) ClearHistory(c *gin.Context) {
	cleared := h.pipeline.ClearLocationHistory(c.Param("rider_id"))
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

func (h *TrackingHandler) PutRoute(c *gin.Context) {
	orderID := c.Param("order_id")

	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var route domain.RoutePolyline
	switch {
	case req.EncodedPolyline != "":
		points := geo.DecodePolyline(req.EncodedPolyline)
		if len(points) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "encoded_polyline has no points"})
			return
		}
		route = domain.RoutePolyline{
			Points:          points,
			TotalDistance:   geo.PathLength(points),
			EncodedPolyline: req.EncodedPolyline,
			DurationSeconds: req.DurationSeconds,
		}
	case len(req.Points) > 0:
		route = domain.RoutePolyline{
			Points:          req.Points,
			TotalDistance:   req.TotalDistance,
			EncodedPolyline: geo.EncodePolyline(req.Points),
			DurationSeconds: req.DurationSeconds,
		}
		if route.TotalDistance == 0 {
			route.TotalDistance = geo.PathLength(req.Points)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "encoded_polyline or points required"})
		return
	}

	c.JSON(http.StatusOK, h.pipeline.CacheRoutePolyline(orderID, route))
}

func (h *TrackingHandler) GetRoute(c *gin.Context) {
	orderID := c.Param("order_id")

	route, ok := h.pipeline.GetCachedRoute(orderID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
		return
	}

	c.JSON(http.StatusOK, routeFeature(orderID, route))
}

func (h *TrackingHandler) ClearRoute(c *gin.Context) {
	cleared := h.pipeline.ClearRouteCache(c.Param("order_id"))
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

func (h *TrackingHandler) GetProgress(c *gin.Context) {
	orderID := c.Param("order_id")

	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lat parameter"})
		return
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil || lng < -180 || lng > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lng parameter"})
		return
	}

	progress, ok := h.pipeline.Progress(orderID, domain.Coordinate{Lat: lat, Lng: lng})
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
		return
	}

	c.JSON(http.StatusOK, progress)
}

// routeFeature renders a cached route as a GeoJSON LineString feature.
func routeFeature(orderID string, route *domain.RoutePolyline) *geojson.Feature {
	line := make(orb.LineString, len(route.Points))
	for i, p := range route.Points {
		line[i] = orb.Point{p.Lng, p.Lat}
	}

	f := geojson.NewFeature(line)
	f.Properties["order_id"] = orderID
	f.Properties["total_distance"] = route.TotalDistance
	f.Properties["duration_seconds"] = route.DurationSeconds
	f.Properties["encoded_polyline"] = route.EncodedPolyline
	return f
}

func (r *coordinateRequest) coordinate() *domain.Coordinate {
	if r == nil {
		return nil
	}
	return &domain.Coordinate{Lat: r.Latitude, Lng: r.Longitude}
}
