package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
	"github.com/nandanugg/courier-tracking/module/tracking/geo"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/maps"
	"github.com/nandanugg/courier-tracking/module/tracking/internal/store"
)

type mockSnapper struct {
	snapFn func(ctx context.Context, apiKey string, path []domain.Coordinate) ([]domain.SnappedPoint, error)
}

func (m *mockSnapper) SnapToRoads(ctx context.Context, apiKey string, path []domain.Coordinate) ([]domain.SnappedPoint, error) {
	return m.snapFn(ctx, apiKey, path)
}

type mockDirections struct {
	directionsFn func(ctx context.Context, apiKey string, origin domain.Coordinate, waypoint *domain.Coordinate, destination domain.Coordinate) (*domain.DirectionsResult, error)
}

func (m *mockDirections) Directions(ctx context.Context, apiKey string, origin domain.Coordinate, waypoint *domain.Coordinate, destination domain.Coordinate) (*domain.DirectionsResult, error) {
	return m.directionsFn(ctx, apiKey, origin, waypoint, destination)
}

type staticKey struct {
	key string
	err error
}

func (k staticKey) MapsAPIKey(context.Context) (string, error) {
	return k.key, k.err
}

type recordingMetrics struct {
	mu        sync.Mutex
	stages    map[string]string
	routes    []string
	fallbacks int
}

func (m *recordingMetrics) ObserveProcess(_ time.Duration, fallback bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fallback {
		m.fallbacks++
	}
}

func (m *recordingMetrics) StageResult(stage, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stages == nil {
		m.stages = map[string]string{}
	}
	m.stages[stage] = status
}

func (m *recordingMetrics) RouteFetched(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, result)
}

func identitySnapper() *mockSnapper {
	return &mockSnapper{
		snapFn: func(_ context.Context, _ string, path []domain.Coordinate) ([]domain.SnappedPoint, error) {
			out := make([]domain.SnappedPoint, len(path))
			for i, c := range path {
				out[i] = domain.SnappedPoint{Coordinate: c}
			}
			return out, nil
		},
	}
}

func rawAt(lat, lng float64) domain.RawSample {
	return domain.RawSample{Coordinate: domain.Coordinate{Lat: lat, Lng: lng}}
}

func TestProcessLocationUpdate_NoHintsNoRoute(t *testing.T) {
	p := NewPipeline(PipelineDeps{Snapper: identitySnapper(), Keys: staticKey{key: "k"}}, PipelineOptions{})

	out := p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(-6.2, 106.8), nil)

	if out.OnRoute {
		t.Error("expected off route")
	}
	if out.Progress != 0 {
		t.Errorf("expected progress 0, got %v", out.Progress)
	}
	if !out.Snapped {
		t.Error("expected snapped")
	}
	if out.Lat != -6.2 || out.Lng != 106.8 {
		t.Errorf("expected smoothed position, got %v,%v", out.Lat, out.Lng)
	}
	if out.Speed != DefaultSpeedKmh {
		t.Errorf("expected default speed, got %v", out.Speed)
	}
}

func TestProcessLocationUpdate_SeededRouteMidpoint(t *testing.T) {
	points := equatorRoute(500, 3)
	p := NewPipeline(PipelineDeps{}, PipelineOptions{})
	p.CacheRoutePolyline("O1", domain.RoutePolyline{Points: points, TotalDistance: 1000})

	out := p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(points[1].Lat, points[1].Lng), nil)

	if !out.OnRoute {
		t.Fatal("expected on route")
	}
	if math.Abs(out.Progress-0.5) > 1e-6 {
		t.Errorf("expected progress 0.5, got %v", out.Progress)
	}
	if out.Lat != points[2].Lat || out.Lng != points[2].Lng {
		t.Errorf("expected next route point, got %v,%v", out.Lat, out.Lng)
	}
	if math.Abs(out.DistanceCovered+out.RemainingDistance-1000) > 1e-9 {
		t.Errorf("covered + remaining != total")
	}
	if out.Snapped {
		t.Error("expected unsnapped without a snapper")
	}
}

func TestProcessLocationUpdate_SnapFailureDegrades(t *testing.T) {
	metrics := &recordingMetrics{}
	snapper := &mockSnapper{
		snapFn: func(_ context.Context, _ string, _ []domain.Coordinate) ([]domain.SnappedPoint, error) {
			return nil, errors.New("roads api down")
		},
	}
	p := NewPipeline(PipelineDeps{Snapper: snapper, Keys: staticKey{key: "k"}, Metrics: metrics}, PipelineOptions{})

	out := p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(1, 2), nil)

	if out.Snapped {
		t.Error("expected unsnapped")
	}
	if out.Lat != 1 || out.Lng != 2 {
		t.Errorf("expected raw coordinate, got %v,%v", out.Lat, out.Lng)
	}
	if metrics.stages[stageSnap] != string(StageDegraded) {
		t.Errorf("expected degraded snap, got %s", metrics.stages[stageSnap])
	}
}

func TestProcessLocationUpdate_SnapUsesSnappedCoordinate(t *testing.T) {
	snapper := &mockSnapper{
		snapFn: func(_ context.Context, apiKey string, path []domain.Coordinate) ([]domain.SnappedPoint, error) {
			if apiKey != "k" {
				t.Errorf("expected api key k, got %s", apiKey)
			}
			if len(path) != 1 {
				t.Errorf("expected single-point path, got %d", len(path))
			}
			return []domain.SnappedPoint{{Coordinate: domain.Coordinate{Lat: 5, Lng: 6}}}, nil
		},
	}
	p := NewPipeline(PipelineDeps{Snapper: snapper, Keys: staticKey{key: "k"}}, PipelineOptions{})

	out := p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(5.001, 6.001), nil)

	if out.Lat != 5 || out.Lng != 6 {
		t.Errorf("expected snapped coordinate, got %v,%v", out.Lat, out.Lng)
	}
}

func TestProcessLocationUpdate_MissingKeySkipsExternalCalls(t *testing.T) {
	called := false
	snapper := &mockSnapper{
		snapFn: func(_ context.Context, _ string, _ []domain.Coordinate) ([]domain.SnappedPoint, error) {
			called = true
			return nil, nil
		},
	}
	directions := &mockDirections{
		directionsFn: func(_ context.Context, _ string, _ domain.Coordinate, _ *domain.Coordinate, _ domain.Coordinate) (*domain.DirectionsResult, error) {
			called = true
			return nil, nil
		},
	}
	p := NewPipeline(PipelineDeps{Snapper: snapper, Directions: directions, Keys: staticKey{err: ErrMissingAPIKey}}, PipelineOptions{})
	hints := &domain.RouteHints{Restaurant: &domain.Coordinate{Lat: 1, Lng: 1}, Customer: &domain.Coordinate{Lat: 2, Lng: 2}}

	out := p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(0, 0), hints)

	if called {
		t.Error("expected no provider calls without an api key")
	}
	if out.Snapped || out.OnRoute {
		t.Errorf("expected unsnapped and off route, got %+v", out)
	}
	if _, ok := p.GetCachedRoute("O1"); ok {
		t.Error("expected no cached route")
	}
}

func TestProcessLocationUpdate_MaterializesRouteOnce(t *testing.T) {
	encoded := geo.EncodePolyline(equatorRoute(500, 3))
	var calls int32
	var gotOrigin domain.Coordinate
	var gotWaypoint *domain.Coordinate
	var gotDest domain.Coordinate
	directions := &mockDirections{
		directionsFn: func(_ context.Context, _ string, origin domain.Coordinate, waypoint *domain.Coordinate, destination domain.Coordinate) (*domain.DirectionsResult, error) {
			atomic.AddInt32(&calls, 1)
			gotOrigin, gotWaypoint, gotDest = origin, waypoint, destination
			return &domain.DirectionsResult{EncodedPolyline: encoded, DurationSeconds: 300}, nil
		},
	}
	metrics := &recordingMetrics{}
	p := NewPipeline(PipelineDeps{Directions: directions, Keys: staticKey{key: "k"}, Metrics: metrics}, PipelineOptions{})
	restaurant := domain.Coordinate{Lat: 0, Lng: 0.004}
	customer := domain.Coordinate{Lat: 0, Lng: 0.009}
	hints := &domain.RouteHints{Restaurant: &restaurant, Customer: &customer}

	first := p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(0, 0), hints)
	second := p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(0, 0), hints)

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected 1 directions call, got %d", calls)
	}
	if !first.OnRoute || !second.OnRoute {
		t.Error("expected both updates on route")
	}
	if gotOrigin != (domain.Coordinate{}) {
		t.Errorf("expected rider origin, got %v", gotOrigin)
	}
	if gotWaypoint == nil || *gotWaypoint != restaurant {
		t.Errorf("expected restaurant waypoint, got %v", gotWaypoint)
	}
	if gotDest != customer {
		t.Errorf("expected customer destination, got %v", gotDest)
	}

	route, ok := p.GetCachedRoute("O1")
	if !ok {
		t.Fatal("expected cached route")
	}
	if len(route.Points) != 3 {
		t.Errorf("expected 3 points, got %d", len(route.Points))
	}
	if math.Abs(route.TotalDistance-geo.PathLength(route.Points)) > 1e-9 {
		t.Errorf("expected total distance from decoded points, got %v", route.TotalDistance)
	}
	if route.DurationSeconds != 300 {
		t.Errorf("expected duration 300, got %d", route.DurationSeconds)
	}
	if len(metrics.routes) != 1 || metrics.routes[0] != "ok" {
		t.Errorf("expected one ok fetch, got %v", metrics.routes)
	}
}

func TestProcessLocationUpdate_ConcurrentRidersShareOneFetch(t *testing.T) {
	encoded := geo.EncodePolyline(equatorRoute(500, 3))
	var calls int32
	release := make(chan struct{})
	directions := &mockDirections{
		directionsFn: func(_ context.Context, _ string, _ domain.Coordinate, _ *domain.Coordinate, _ domain.Coordinate) (*domain.DirectionsResult, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return &domain.DirectionsResult{EncodedPolyline: encoded}, nil
		},
	}
	p := NewPipeline(PipelineDeps{Directions: directions, Keys: staticKey{key: "k"}}, PipelineOptions{DirectionsTimeout: time.Minute})
	hints := &domain.RouteHints{Restaurant: &domain.Coordinate{Lat: 0, Lng: 0.001}, Customer: &domain.Coordinate{Lat: 0, Lng: 0.002}}

	var wg sync.WaitGroup
	results := make([]domain.ProcessedLocation, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.ProcessLocationUpdate(context.Background(), string(rune('A'+i)), "O1", rawAt(0, 0), hints)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected a single directions call, got %d", calls)
	}
	for i, r := range results {
		if !r.OnRoute {
			t.Errorf("rider %d: expected on route", i)
		}
	}
}

func TestProcessLocationUpdate_DirectionsFailureRetriesLater(t *testing.T) {
	encoded := geo.EncodePolyline(equatorRoute(500, 3))
	var calls int32
	directions := &mockDirections{
		directionsFn: func(_ context.Context, _ string, _ domain.Coordinate, _ *domain.Coordinate, _ domain.Coordinate) (*domain.DirectionsResult, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, maps.ErrNoRoute
			}
			return &domain.DirectionsResult{EncodedPolyline: encoded}, nil
		},
	}
	metrics := &recordingMetrics{}
	p := NewPipeline(PipelineDeps{Directions: directions, Keys: staticKey{key: "k"}, Metrics: metrics}, PipelineOptions{})
	hints := &domain.RouteHints{Restaurant: &domain.Coordinate{Lat: 0, Lng: 0.001}, Customer: &domain.Coordinate{Lat: 0, Lng: 0.002}}

	first := p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(0, 0), hints)
	if first.OnRoute {
		t.Error("expected first update off route")
	}
	if metrics.stages[stageRoute] != string(StageDegraded) {
		t.Errorf("expected degraded route stage, got %s", metrics.stages[stageRoute])
	}

	second := p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(0, 0), hints)
	if !second.OnRoute {
		t.Error("expected second update on route")
	}
	if calls != 2 {
		t.Errorf("expected 2 directions calls, got %d", calls)
	}
}

func TestProcessLocationUpdate_InvalidInputFallsBack(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lng  float64
	}{
		{"nan lat", math.NaN(), 0},
		{"inf lng", 0, math.Inf(1)},
		{"lat out of range", 91, 0},
		{"lng out of range", 0, -181},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := &recordingMetrics{}
			p := NewPipeline(PipelineDeps{Metrics: metrics}, PipelineOptions{})
			now := time.Unix(1715003456, 0)
			p.now = func() time.Time { return now }

			out := p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(tt.lat, tt.lng), nil)

			if out.Snapped || out.OnRoute {
				t.Errorf("expected fallback flags, got %+v", out)
			}
			if !out.Timestamp.Equal(now) {
				t.Errorf("expected fallback timestamp %v, got %v", now, out.Timestamp)
			}
			if metrics.fallbacks != 1 {
				t.Errorf("expected 1 fallback, got %d", metrics.fallbacks)
			}
			if got := p.history.Get("R1"); len(got) != 0 {
				t.Errorf("expected no history for rejected input, got %d", len(got))
			}
		})
	}
}

func TestProcessLocationUpdate_PanicFallsBack(t *testing.T) {
	snapper := &mockSnapper{
		snapFn: func(_ context.Context, _ string, _ []domain.Coordinate) ([]domain.SnappedPoint, error) {
			panic("boom")
		},
	}
	metrics := &recordingMetrics{}
	p := NewPipeline(PipelineDeps{Snapper: snapper, Keys: staticKey{key: "k"}, Metrics: metrics}, PipelineOptions{})

	out := p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(3, 4), nil)

	if out.Lat != 3 || out.Lng != 4 || out.Snapped || out.OnRoute {
		t.Errorf("expected raw fallback, got %+v", out)
	}
	if metrics.fallbacks != 1 {
		t.Errorf("expected 1 fallback, got %d", metrics.fallbacks)
	}

	// the rider lock must have been released
	done := make(chan struct{})
	go func() {
		p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(3, 4), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("rider lock not released after panic")
	}
}

func TestProcessLocationUpdate_SnapTimeout(t *testing.T) {
	snapper := &mockSnapper{
		snapFn: func(ctx context.Context, _ string, _ []domain.Coordinate) ([]domain.SnappedPoint, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	p := NewPipeline(PipelineDeps{Snapper: snapper, Keys: staticKey{key: "k"}}, PipelineOptions{SnapTimeout: 10 * time.Millisecond})

	out := p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(1, 1), nil)

	if out.Snapped {
		t.Error("expected unsnapped after timeout")
	}
}

func TestPipeline_ClearHooks(t *testing.T) {
	history := store.NewHistoryStore(store.DefaultHistoryWindow, 0, 0)
	routes := store.NewRouteStore(0, 0)
	p := NewPipeline(PipelineDeps{History: history, Routes: routes}, PipelineOptions{})

	p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(1, 1), nil)
	p.CacheRoutePolyline("O1", NewRoutePolyline(geo.EncodePolyline(equatorRoute(100, 2)), 60))

	if !p.ClearLocationHistory("R1") {
		t.Error("expected history cleared")
	}
	if p.ClearLocationHistory("R1") {
		t.Error("expected second clear to report nothing removed")
	}
	if !p.ClearRouteCache("O1") {
		t.Error("expected route cleared")
	}

	// after clearing, the next update is treated as the rider's first
	out := p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(9, 9), nil)
	if out.Lat != 9 || out.Lng != 9 || out.OnRoute {
		t.Errorf("expected fresh unsmoothed update, got %+v", out)
	}

	p.Reset()
	if history.Len() != 0 || routes.Len() != 0 {
		t.Error("expected stores purged")
	}
}

func TestNewRoutePolyline(t *testing.T) {
	points := equatorRoute(100, 4)
	route := NewRoutePolyline(geo.EncodePolyline(points), 42)

	if len(route.Points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(route.Points))
	}
	if math.Abs(route.TotalDistance-300) > 2 {
		t.Errorf("expected ~300m, got %v", route.TotalDistance)
	}
	if route.DurationSeconds != 42 {
		t.Errorf("expected duration 42, got %d", route.DurationSeconds)
	}
}

// blockingDirections holds every directions request until release is closed.
func blockingDirections(encoded string, started chan<- struct{}, release <-chan struct{}) *mockDirections {
	var once sync.Once
	return &mockDirections{
		directionsFn: func(ctx context.Context, _ string, _ domain.Coordinate, _ *domain.Coordinate, _ domain.Coordinate) (*domain.DirectionsResult, error) {
			once.Do(func() { close(started) })
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return &domain.DirectionsResult{EncodedPolyline: encoded}, nil
		},
	}
}

func routeHints() *domain.RouteHints {
	return &domain.RouteHints{Restaurant: &domain.Coordinate{Lat: 1, Lng: 1.001}, Customer: &domain.Coordinate{Lat: 1, Lng: 1.002}}
}

func TestCacheRoutePolyline_SeedDuringFetchWins(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	fetched := geo.EncodePolyline([]domain.Coordinate{{Lat: 1, Lng: 1}, {Lat: 1, Lng: 2}})
	p := NewPipeline(PipelineDeps{Directions: blockingDirections(fetched, started, release), Keys: staticKey{key: "k"}},
		PipelineOptions{DirectionsTimeout: time.Minute})

	done := make(chan struct{})
	go func() {
		p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(1, 1), routeHints())
		close(done)
	}()
	<-started

	seeded := make(chan struct{})
	go func() {
		p.CacheRoutePolyline("O1", domain.RoutePolyline{Points: []domain.Coordinate{{Lat: 5, Lng: 5}, {Lat: 5, Lng: 6}}, TotalDistance: 1000})
		close(seeded)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-done
	<-seeded

	route, ok := p.GetCachedRoute("O1")
	if !ok {
		t.Fatal("expected cached route")
	}
	if route.Points[0] != (domain.Coordinate{Lat: 5, Lng: 5}) || route.TotalDistance != 1000 {
		t.Errorf("expected seeded route to survive the fetch, got first point %v total %v", route.Points[0], route.TotalDistance)
	}
}

func TestClearRouteCache_DuringFetchStaysCleared(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	fetched := geo.EncodePolyline([]domain.Coordinate{{Lat: 1, Lng: 1}, {Lat: 1, Lng: 2}})
	p := NewPipeline(PipelineDeps{Directions: blockingDirections(fetched, started, release), Keys: staticKey{key: "k"}},
		PipelineOptions{DirectionsTimeout: time.Minute})

	done := make(chan struct{})
	go func() {
		p.ProcessLocationUpdate(context.Background(), "R1", "O1", rawAt(1, 1), routeHints())
		close(done)
	}()
	<-started

	cleared := make(chan struct{})
	go func() {
		p.ClearRouteCache("O1")
		close(cleared)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-done
	<-cleared

	if _, ok := p.GetCachedRoute("O1"); ok {
		t.Error("expected no route after ClearRouteCache during fetch")
	}
}

func TestProcessLocationUpdate_RouteFetchSurvivesFirstCallerCancel(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	fetched := geo.EncodePolyline([]domain.Coordinate{{Lat: 1, Lng: 1}, {Lat: 1, Lng: 2}})
	p := NewPipeline(PipelineDeps{Directions: blockingDirections(fetched, started, release), Keys: staticKey{key: "k"}},
		PipelineOptions{DirectionsTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan domain.ProcessedLocation, 1)
	go func() {
		first <- p.ProcessLocationUpdate(ctx, "R1", "O1", rawAt(1, 1), routeHints())
	}()
	<-started

	second := make(chan domain.ProcessedLocation, 1)
	go func() {
		second <- p.ProcessLocationUpdate(context.Background(), "R2", "O1", rawAt(1, 1), routeHints())
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(release)

	<-first
	if out := <-second; !out.OnRoute {
		t.Error("expected second rider on route after first caller cancelled")
	}
	if _, ok := p.GetCachedRoute("O1"); !ok {
		t.Error("expected route cached despite first caller cancelling")
	}
}
