package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
	"github.com/nandanugg/courier-tracking/module/tracking/geo"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/maps"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/store"
)

const (
	DefaultSnapTimeout       = 3 * time.Second
	DefaultDirectionsTimeout = 5 * time.Second
	DefaultKeyLookupTimeout  = time.Second
)

type APIKeySource interface {
	MapsAPIKey(ctx context.Context) (string, error)
}

type PipelineMetrics interface {
	ObserveProcess(d time.Duration, fallback bool)
	StageResult(stage, status string)
	RouteFetched(result string)
}

type PipelineDeps struct {
	Snapper    maps.RoadSnapper
	Directions maps.DirectionsProvider
	Keys       APIKeySource
	History    *store.HistoryStore
	Routes     *store.RouteStore
	Metrics    PipelineMetrics
}

type PipelineOptions struct {
	SnapTimeout       time.Duration
	DirectionsTimeout time.Duration
	KeyLookupTimeout  time.Duration
	// LockStripes sizes the per-rider and per-order lock tables; 0 uses
	// store.DefaultStripes.
	LockStripes int
}

// Pipeline turns raw courier fixes into route-aware positions.
type Pipeline struct {
	snapper    maps.RoadSnapper
	directions maps.DirectionsProvider
	keys       APIKeySource
	history    *store.HistoryStore
	routes     *store.RouteStore
	smoother   *Smoother
	matcher    *RouteMatcher
	metrics    PipelineMetrics
	opts       PipelineOptions

	riderLocks  *store.KeyLock
	orderLocks  *store.KeyLock
	routeFlight singleflight.Group

	now func() time.Time
}

func NewPipeline(deps PipelineDeps, opts PipelineOptions) *Pipeline {
	if opts.SnapTimeout <= 0 {
		opts.SnapTimeout = DefaultSnapTimeout
	}
	if opts.DirectionsTimeout <= 0 {
		opts.DirectionsTimeout = DefaultDirectionsTimeout
	}
	if opts.KeyLookupTimeout <= 0 {
		opts.KeyLookupTimeout = DefaultKeyLookupTimeout
	}
	if deps.History == nil {
		deps.History = store.NewHistoryStore(store.DefaultHistoryWindow, 0, 0)
	}
	if deps.Routes == nil {
		deps.Routes = store.NewRouteStore(0, 0)
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}

	return &Pipeline{
		snapper:    deps.Snapper,
		directions: deps.Directions,
		keys:       deps.Keys,
		history:    deps.History,
		routes:     deps.Routes,
		smoother:   NewSmoother(deps.History),
		matcher:    NewRouteMatcher(deps.Routes),
		metrics:    deps.Metrics,
		opts:       opts,
		riderLocks: store.NewKeyLock(opts.LockStripes),
		orderLocks: store.NewKeyLock(opts.LockStripes),
		now:        time.Now,
	}
}

// ProcessLocationUpdate runs one raw fix through snap, smooth, route
// materialization and matching. It never fails: when input validation fails
// or a stage panics, the raw coordinate is returned unsnapped and off route.
// Updates for the same rider are processed one at a time.
func (p *Pipeline) ProcessLocationUpdate(ctx context.Context, riderID, orderID string, raw domain.RawSample, hints *domain.RouteHints) (out domain.ProcessedLocation) {
	start := time.Now()
	fallback := false
	defer func() {
		if r := recover(); r != nil {
			log.Printf("process location panic rider=%s order=%s: %v", riderID, orderID, r)
			out = p.fallbackLocation(raw)
			fallback = true
		}
		p.metrics.ObserveProcess(time.Since(start), fallback)
	}()

	if res := validateSample(raw); res.Status == StageFailed {
		p.record(res)
		log.Printf("invalid location rider=%s order=%s: %v", riderID, orderID, res.Err)
		fallback = true
		return p.fallbackLocation(raw)
	}

	unlock := p.riderLocks.Lock(riderID)
	defer unlock()

	position, snap := p.snapStage(ctx, raw.Coordinate)
	p.record(snap)

	smoothed := p.smoothStage(riderID, position, raw)

	p.record(p.routeStage(ctx, orderID, smoothed.Coordinate, hints))

	progress, match := p.matchStage(orderID, smoothed.Coordinate)
	p.record(match)

	out = domain.ProcessedLocation{
		Lat:       smoothed.Lat,
		Lng:       smoothed.Lng,
		Bearing:   smoothed.Bearing,
		Speed:     smoothed.Speed,
		Timestamp: smoothed.Timestamp,
		Snapped:   snap.Status == StageOK,
	}
	if progress != nil {
		out.Lat = progress.NextPoint.Lat
		out.Lng = progress.NextPoint.Lng
		out.Progress = progress.ProgressFraction
		out.DistanceCovered = progress.DistanceCoveredMeters
		out.RemainingDistance = progress.RemainingDistanceMeters
		out.OnRoute = true
	}
	return out
}

func validateSample(raw domain.RawSample) StageResult {
	lat, lng := raw.Lat, raw.Lng
	switch {
	case math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0):
		return stageWith(stageValidate, StageFailed, fmt.Errorf("non-finite coordinate %v,%v", lat, lng))
	case lat < -90 || lat > 90 || lng < -180 || lng > 180:
		return stageWith(stageValidate, StageFailed, fmt.Errorf("coordinate out of range %v,%v", lat, lng))
	}
	return stageOK(stageValidate)
}

func (p *Pipeline) fallbackLocation(raw domain.RawSample) domain.ProcessedLocation {
	return domain.ProcessedLocation{
		Lat:       raw.Lat,
		Lng:       raw.Lng,
		Timestamp: p.now(),
	}
}

func (p *Pipeline) snapStage(ctx context.Context, raw domain.Coordinate) (domain.Coordinate, StageResult) {
	if p.snapper == nil {
		return raw, stageWith(stageSnap, StageSkipped, nil)
	}

	key, err := p.apiKey(ctx)
	if err != nil {
		log.Printf("snap skipped: %v", err)
		return raw, stageWith(stageSnap, StageDegraded, err)
	}

	sctx, cancel := context.WithTimeout(ctx, p.opts.SnapTimeout)
	defer cancel()

	points, err := p.snapper.SnapToRoads(sctx, key, []domain.Coordinate{raw})
	if err != nil {
		log.Printf("snap to roads error: %v", err)
		return raw, stageWith(stageSnap, StageDegraded, fmt.Errorf("snap: %w", err))
	}
	if len(points) == 0 {
		return raw, stageWith(stageSnap, StageDegraded, errors.New("snap: no points returned"))
	}
	return points[0].Coordinate, stageOK(stageSnap)
}

func (p *Pipeline) smoothStage(riderID string, position domain.Coordinate, raw domain.RawSample) domain.SmoothedLocation {
	sample := domain.RawSample{
		Coordinate: position,
		Speed:      raw.Speed,
		Bearing:    raw.Bearing,
		Accuracy:   raw.Accuracy,
		Timestamp:  raw.Timestamp,
	}
	// Devices report 0 for unknown speed and accuracy.
	if sample.Speed == nil || *sample.Speed == 0 {
		sample.Speed = domain.Float(DefaultSpeedKmh)
	}
	if sample.Bearing == nil {
		sample.Bearing = domain.Float(DefaultBearingDegrees)
	}
	if sample.Accuracy == nil || *sample.Accuracy == 0 {
		sample.Accuracy = domain.Float(DefaultAccuracyMeters)
	}

	smoothed := p.smoother.Smooth(riderID, sample)
	p.record(stageOK(stageSmooth))
	return smoothed
}

// routeStage materializes the reference route for orderID the first time
// hints are available. Concurrent callers for the same order share a single
// directions request, which is detached from the first caller's cancellation.
// A failure leaves the order un-routed so a later update can try again.
func (p *Pipeline) routeStage(ctx context.Context, orderID string, origin domain.Coordinate, hints *domain.RouteHints) StageResult {
	if _, ok := p.routes.Get(orderID); ok {
		return stageOK(stageRoute)
	}
	if !hints.Present() || p.directions == nil {
		return stageWith(stageRoute, StageSkipped, nil)
	}

	flightCtx := context.WithoutCancel(ctx)
	_, err, _ := p.routeFlight.Do(orderID, func() (any, error) {
		unlock := p.orderLocks.Lock(orderID)
		defer unlock()

		if route, ok := p.routes.Get(orderID); ok {
			return route, nil
		}
		return p.fetchRoute(flightCtx, orderID, origin, hints)
	})

	switch {
	case err == nil:
		return stageOK(stageRoute)
	case errors.Is(err, ErrMissingAPIKey):
		log.Printf("route skipped for order %s: %v", orderID, err)
		return stageWith(stageRoute, StageSkipped, err)
	default:
		log.Printf("route materialization error for order %s: %v", orderID, err)
		return stageWith(stageRoute, StageDegraded, err)
	}
}

// fetchRoute requests a route from the rider's position through the
// restaurant to the customer. The caller must hold the order lock.
func (p *Pipeline) fetchRoute(ctx context.Context, orderID string, origin domain.Coordinate, hints *domain.RouteHints) (*domain.RoutePolyline, error) {
	key, err := p.apiKey(ctx)
	if err != nil {
		p.metrics.RouteFetched("skipped")
		return nil, err
	}

	dctx, cancel := context.WithTimeout(ctx, p.opts.DirectionsTimeout)
	defer cancel()

	res, err := p.directions.Directions(dctx, key, origin, hints.Restaurant, *hints.Customer)
	if err != nil {
		if errors.Is(err, maps.ErrNoRoute) {
			p.metrics.RouteFetched("no_route")
		} else {
			p.metrics.RouteFetched("error")
		}
		return nil, fmt.Errorf("directions: %w", err)
	}

	route := NewRoutePolyline(res.EncodedPolyline, res.DurationSeconds)
	if len(res.Points) > 0 {
		route.Points = res.Points
		route.TotalDistance = geo.PathLength(res.Points)
	}
	if len(route.Points) == 0 {
		p.metrics.RouteFetched("no_route")
		return nil, fmt.Errorf("directions: %w", maps.ErrNoRoute)
	}

	p.metrics.RouteFetched("ok")
	return p.routes.Put(orderID, route), nil
}

func (p *Pipeline) matchStage(orderID string, loc domain.Coordinate) (*domain.RouteProgress, StageResult) {
	progress, ok := p.matcher.Progress(orderID, loc)
	if !ok {
		return nil, stageWith(stageMatch, StageSkipped, nil)
	}
	return progress, stageOK(stageMatch)
}

func (p *Pipeline) apiKey(ctx context.Context) (string, error) {
	if p.keys == nil {
		return "", ErrMissingAPIKey
	}
	kctx, cancel := context.WithTimeout(ctx, p.opts.KeyLookupTimeout)
	defer cancel()
	return p.keys.MapsAPIKey(kctx)
}

func (p *Pipeline) record(res StageResult) {
	p.metrics.StageResult(res.Stage, string(res.Status))
}

// NewRoutePolyline decodes an encoded polyline into a route whose total
// distance is the sum of the decoded segment lengths.
func NewRoutePolyline(encoded string, durationSeconds int) domain.RoutePolyline {
	points := geo.DecodePolyline(encoded)
	return domain.RoutePolyline{
		Points:          points,
		TotalDistance:   geo.PathLength(points),
		EncodedPolyline: encoded,
		DurationSeconds: durationSeconds,
	}
}

// CacheRoutePolyline seeds the route for orderID, replacing any cached one.
// It waits for an in-flight directions request for the same order, so the
// seed always wins.
func (p *Pipeline) CacheRoutePolyline(orderID string, route domain.RoutePolyline) *domain.RoutePolyline {
	unlock := p.orderLocks.Lock(orderID)
	defer unlock()
	return p.routes.Put(orderID, route)
}

func (p *Pipeline) GetCachedRoute(orderID string) (*domain.RoutePolyline, bool) {
	return p.routes.Get(orderID)
}

func (p *Pipeline) ClearLocationHistory(riderID string) bool {
	return p.history.Clear(riderID)
}

// ClearRouteCache waits for an in-flight directions request for the same
// order, so a fetched route cannot reappear after the clear.
func (p *Pipeline) ClearRouteCache(orderID string) bool {
	unlock := p.orderLocks.Lock(orderID)
	defer unlock()
	return p.routes.Clear(orderID)
}

// Progress matches loc against the cached route without touching rider
// history.
func (p *Pipeline) Progress(orderID string, loc domain.Coordinate) (*domain.RouteProgress, bool) {
	return p.matcher.Progress(orderID, loc)
}

// Reset drops every cached history window and route.
func (p *Pipeline) Reset() {
	p.history.Purge()
	p.routes.Purge()
}

type noopMetrics struct{}

func (noopMetrics) ObserveProcess(time.Duration, bool) {}
func (noopMetrics) StageResult(string, string)         {}
func (noopMetrics) RouteFetched(string)                {}
