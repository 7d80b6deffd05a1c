package store

import (
	"hash/fnv"
	"sync"
)

const DefaultStripes = 256

// KeyLock serializes work per key using a fixed set of striped mutexes.
// Distinct keys may share a stripe; the same key always maps to the same one.
type KeyLock struct {
	stripes []sync.Mutex
}

func NewKeyLock(stripes int) *KeyLock {
	if stripes <= 0 {
		stripes = DefaultStripes
	}
	return &KeyLock{stripes: make([]sync.Mutex, stripes)}
}

// Lock blocks until the stripe for key is held and returns its unlock func.
func (l *KeyLock) Lock(key string) func() {
	mu := &l.stripes[l.index(key)]
	mu.Lock()
	return mu.Unlock
}

func (l *KeyLock) index(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % uint32(len(l.stripes))
}
