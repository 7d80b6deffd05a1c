package store

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
)

// RouteStore caches one reference route per order.
type RouteStore struct {
	cache *expirable.LRU[string, *domain.RoutePolyline]
}

func NewRouteStore(capacity int, ttl time.Duration) *RouteStore {
	return &RouteStore{
		cache: expirable.NewLRU[string, *domain.RoutePolyline](capacity, nil, ttl),
	}
}

// Get returns a copy of the cached route, so callers may modify it freely.
func (s *RouteStore) Get(orderID string) (*domain.RoutePolyline, bool) {
	route, ok := s.cache.Get(orderID)
	if !ok {
		return nil, false
	}
	return cloneRoute(*route), true
}

// Put stores a private copy of route and returns another copy, so neither
// the argument nor the result aliases the cached polyline.
func (s *RouteStore) Put(orderID string, route domain.RoutePolyline) *domain.RoutePolyline {
	s.cache.Add(orderID, cloneRoute(route))
	return cloneRoute(route)
}

func (s *RouteStore) Clear(orderID string) bool {
	return s.cache.Remove(orderID)
}

func (s *RouteStore) Len() int {
	return s.cache.Len()
}

func (s *RouteStore) Purge() {
	s.cache.Purge()
}

func cloneRoute(route domain.RoutePolyline) *domain.RoutePolyline {
	points := make([]domain.Coordinate, len(route.Points))
	copy(points, route.Points)
	route.Points = points
	return &route
}
