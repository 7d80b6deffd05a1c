package store

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
)

const DefaultHistoryWindow = 5

// HistoryStore keeps a bounded sliding window of recent samples per rider.
// Riders idle longer than the TTL, or beyond capacity, are evicted.
type HistoryStore struct {
	window int
	cache  *expirable.LRU[string, []domain.RawSample]
	locks  *KeyLock
}

func NewHistoryStore(window, capacity int, ttl time.Duration) *HistoryStore {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &HistoryStore{
		window: window,
		cache:  expirable.NewLRU[string, []domain.RawSample](capacity, nil, ttl),
		locks:  NewKeyLock(DefaultStripes),
	}
}

// Append adds sample to the rider's window, dropping the oldest entries beyond
// the window size, and returns a snapshot of the window oldest first.
func (s *HistoryStore) Append(riderID string, sample domain.RawSample) []domain.RawSample {
	unlock := s.locks.Lock(riderID)
	defer unlock()

	prev, _ := s.cache.Get(riderID)
	start := 0
	if len(prev)+1 > s.window {
		start = len(prev) + 1 - s.window
	}

	next := make([]domain.RawSample, 0, s.window)
	next = append(next, prev[start:]...)
	next = append(next, sample)
	s.cache.Add(riderID, next)

	out := make([]domain.RawSample, len(next))
	copy(out, next)
	return out
}

func (s *HistoryStore) Get(riderID string) []domain.RawSample {
	samples, ok := s.cache.Peek(riderID)
	if !ok {
		return nil
	}
	out := make([]domain.RawSample, len(samples))
	copy(out, samples)
	return out
}

func (s *HistoryStore) Clear(riderID string) bool {
	return s.cache.Remove(riderID)
}

func (s *HistoryStore) Len() int {
	return s.cache.Len()
}

func (s *HistoryStore) Purge() {
	s.cache.Purge()
}
