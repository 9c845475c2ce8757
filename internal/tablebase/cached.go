package tablebase

import (
	"sync"
	"sync/atomic"

	"github.com/hailam/tablegen/internal/board"
)

// CachedProber wraps another prober with a bounded result cache keyed by
// position key.
type CachedProber struct {
	inner   Prober
	maxSize int

	mu    sync.RWMutex
	cache map[uint64]ProbeResult

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedProber creates a cached prober wrapping the given prober.
func NewCachedProber(inner Prober, cacheSize int) *CachedProber {
	return &CachedProber{
		inner:   inner,
		cache:   make(map[uint64]ProbeResult, cacheSize),
		maxSize: max(cacheSize, 1),
	}
}

func (cp *CachedProber) Probe(pos *board.Position) ProbeResult {
	key := pos.Key()
	cp.mu.RLock()
	result, ok := cp.cache[key]
	cp.mu.RUnlock()
	if ok {
		cp.hits.Add(1)
		return result
	}

	result = cp.inner.Probe(pos)
	cp.misses.Add(1)

	cp.mu.Lock()
	if len(cp.cache) >= cp.maxSize {
		// Drop about half the entries; map order is random enough.
		drop := cp.maxSize / 2
		for k := range cp.cache {
			if drop <= 0 {
				break
			}
			delete(cp.cache, k)
			drop--
		}
	}
	cp.cache[key] = result
	cp.mu.Unlock()
	return result
}

// ProbeRoot is not cached; it depends on the move list.
func (cp *CachedProber) ProbeRoot(pos *board.Position) RootResult {
	return cp.inner.ProbeRoot(pos)
}

func (cp *CachedProber) MaxPieces() int {
	return cp.inner.MaxPieces()
}

func (cp *CachedProber) Available() bool {
	return cp.inner.Available()
}

// HitRate returns the cache hit rate as a percentage.
func (cp *CachedProber) HitRate() float64 {
	hits, misses := cp.hits.Load(), cp.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses) * 100
}

// CacheSize returns the current number of cached entries.
func (cp *CachedProber) CacheSize() int {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	return len(cp.cache)
}

// Clear empties the cache and resets the counters.
func (cp *CachedProber) Clear() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.cache = make(map[uint64]ProbeResult, cp.maxSize)
	cp.hits.Store(0)
	cp.misses.Store(0)
}
