package vector

import (
	"sync"

	"github.com/actuallystonmai/recommendation-engine/internal/metrics"
)

const DefaultSimilarityEntries = 1000

type pairKey struct {
	lo, hi uint64
}

func newPairKey(a, b uint64) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// SimilarityCache memoizes Cosine keyed by vector fingerprints.
// Once over capacity it drops the oldest fifth of its entries.
type SimilarityCache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[pairKey]float64
	order      []pairKey
}

func NewSimilarityCache(maxEntries int) *SimilarityCache {
	if maxEntries <= 0 {
		maxEntries = DefaultSimilarityEntries
	}
	return &SimilarityCache{
		maxEntries: maxEntries,
		entries:    make(map[pairKey]float64, maxEntries),
		order:      make([]pairKey, 0, maxEntries),
	}
}

// Similarity returns Cosine(a, b), computing it at most once per fingerprint pair.
func (c *SimilarityCache) Similarity(a, b []float32) float64 {
	key := newPairKey(Fingerprint(a), Fingerprint(b))

	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		metrics.SimilarityLookups.WithLabelValues("hit").Inc()
		return v
	}
	c.mu.Unlock()

	metrics.SimilarityLookups.WithLabelValues("miss").Inc()
	sim := Cosine(a, b)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.entries[key] = sim
		c.order = append(c.order, key)
		if len(c.entries) > c.maxEntries {
			c.evictOldest()
		}
	}
	return sim
}

// evictOldest drops the first 20% of insertion order. Caller holds mu.
func (c *SimilarityCache) evictOldest() {
	n := c.maxEntries / 5
	if n < 1 {
		n = 1
	}
	if n > len(c.order) {
		n = len(c.order)
	}
	for _, k := range c.order[:n] {
		delete(c.entries, k)
	}
	rest := make([]pairKey, len(c.order)-n, c.maxEntries)
	copy(rest, c.order[n:])
	c.order = rest
}

func (c *SimilarityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
