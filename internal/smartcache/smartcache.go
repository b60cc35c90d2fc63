// Package smartcache is a generic in-process cache with per-entry TTL, tags and
// priority tiers. Under memory or entry-count pressure it evicts the entries with
// the lowest (accessCount × priorityWeight) / log(secondsSinceLastAccess + 1).
package smartcache

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/actuallystonmai/recommendation-engine/internal/metrics"
)

type Priority int

const (
	Low Priority = iota + 1
	Medium
	High
)

func (p Priority) weight() float64 {
	switch p {
	case Low:
		return 1
	case High:
		return 3
	default:
		return 2
	}
}

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case High:
		return "high"
	default:
		return "medium"
	}
}

const (
	defaultMaxEntries  = 10000
	defaultMaxMemory   = 64 << 20
	defaultTTL         = 10 * time.Minute
	defaultLoadTimeout = 30 * time.Second
	fallbackEntrySize  = 64
)

type Config struct {
	// Name labels metrics; empty disables them.
	Name           string
	MaxEntries     int
	MaxMemoryBytes int64
	DefaultTTL     time.Duration
	// SweepInterval <= 0 disables the background sweep.
	SweepInterval time.Duration
	// LoadTimeout bounds a GetOrLoad load, which runs detached from the
	// cancellation of whichever caller started it.
	LoadTimeout time.Duration
	Now         func() time.Time
}

type entry[V any] struct {
	key          string
	value        V
	createdAt    time.Time
	lastAccessed time.Time
	accessCount  int64
	ttl          time.Duration
	sizeBytes    int64
	tags         map[string]struct{}
	priority     Priority
}

// expired: ttl <= 0 never serves a hit, otherwise expired once now > createdAt+ttl.
func (e *entry[V]) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return true
	}
	return now.After(e.createdAt.Add(e.ttl))
}

func (e *entry[V]) score(now time.Time) float64 {
	if e.expired(now) {
		return math.Inf(-1)
	}
	age := now.Sub(e.lastAccessed).Seconds()
	if age < 0 {
		age = 0
	}
	denom := math.Log(age + 1)
	if denom < 1e-9 {
		denom = 1e-9
	}
	return float64(e.accessCount) * e.priority.weight() / denom
}

type setOptions struct {
	ttl      time.Duration
	ttlSet   bool
	tags     []string
	priority Priority
	size     int64
}

type SetOption func(*setOptions)

func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
		o.ttlSet = true
	}
}

func WithTags(tags ...string) SetOption {
	return func(o *setOptions) { o.tags = append(o.tags, tags...) }
}

func WithPriority(p Priority) SetOption {
	return func(o *setOptions) { o.priority = p }
}

// WithSize overrides the JSON-length size estimate.
func WithSize(bytes int64) SetOption {
	return func(o *setOptions) { o.size = bytes }
}

type Stats struct {
	Entries     int   `json:"entries"`
	MemoryBytes int64 `json:"memory_bytes"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
}

type Cache[V any] struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry[V]
	used    int64
	stats   Stats

	loads singleflight.Group
	stop  chan struct{}
	once  sync.Once
}

func New[V any](cfg Config) *Cache[V] {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.MaxMemoryBytes <= 0 {
		cfg.MaxMemoryBytes = defaultMaxMemory
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultTTL
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Cache[V]{
		cfg:     cfg,
		entries: make(map[string]*entry[V]),
		stop:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go c.sweepLoop(cfg.SweepInterval)
	}
	return c
}

// Get returns the value when present and not expired, refreshing its access stats.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	now := c.cfg.Now()
	e, ok := c.entries[key]
	if !ok {
		c.recordMiss()
		return zero, false
	}
	if e.expired(now) {
		c.removeLocked(e, "expired")
		c.recordMiss()
		return zero, false
	}
	e.lastAccessed = now
	e.accessCount++
	c.recordHit()
	return e.value, true
}

// Set stores value, evicting first when the insert would exceed either bound.
// It returns false when the value alone is larger than the memory budget.
func (c *Cache[V]) Set(key string, value V, opts ...SetOption) bool {
	o := setOptions{priority: Medium}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.ttlSet {
		o.ttl = c.cfg.DefaultTTL
	}
	size := o.size
	if size <= 0 {
		size = estimateSize(value)
	}
	if size > c.cfg.MaxMemoryBytes {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(old, "")
	}
	now := c.cfg.Now()
	c.evictLocked(now, size)

	tags := make(map[string]struct{}, len(o.tags))
	for _, t := range o.tags {
		tags[t] = struct{}{}
	}
	c.entries[key] = &entry[V]{
		key:          key,
		value:        value,
		createdAt:    now,
		lastAccessed: now,
		accessCount:  1,
		ttl:          o.ttl,
		sizeBytes:    size,
		tags:         tags,
		priority:     o.priority,
	}
	c.used += size
	c.recordSize()
	return true
}

// GetOrLoad returns the cached value or runs load once per key across
// concurrent callers and caches its result. Load errors are not cached.
//
// The load keeps the values of the ctx that started it but not its
// cancellation, so one caller going away does not fail the others waiting on
// the same key; it is bounded by Config.LoadTimeout instead. A caller whose
// own ctx ends stops waiting and gets ctx.Err().
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error), opts ...SetOption) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	ch := c.loads.DoChan(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.LoadTimeout)
		defer cancel()
		v, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		c.Set(key, v, opts...)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(V), nil
	}
}

func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok {
		c.removeLocked(e, "")
	}
	return ok
}

// InvalidateByTag removes every entry carrying tag and returns how many were removed.
func (c *Cache[V]) InvalidateByTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, e := range c.entries {
		if _, ok := e.tags[tag]; ok {
			c.removeLocked(e, "tag")
			removed++
		}
	}
	return removed
}

// Sweep removes all entries whose ttl has lapsed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.cfg.Now()
	removed := 0
	for _, e := range c.entries {
		if e.expired(now) {
			c.removeLocked(e, "expired")
			removed++
		}
	}
	return removed
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	s.MemoryBytes = c.used
	return s
}

// Close stops the background sweep.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache[V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}

// evictLocked frees room for one more entry of size bytes, lowest score first.
func (c *Cache[V]) evictLocked(now time.Time, size int64) {
	if len(c.entries)+1 <= c.cfg.MaxEntries && c.used+size <= c.cfg.MaxMemoryBytes {
		return
	}
	victims := make([]*entry[V], 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e)
	}
	scores := make(map[*entry[V]]float64, len(victims))
	for _, e := range victims {
		scores[e] = e.score(now)
	}
	sort.Slice(victims, func(i, j int) bool {
		si, sj := scores[victims[i]], scores[victims[j]]
		if si != sj {
			return si < sj
		}
		return victims[i].lastAccessed.Before(victims[j].lastAccessed)
	})
	for _, e := range victims {
		if len(c.entries)+1 <= c.cfg.MaxEntries && c.used+size <= c.cfg.MaxMemoryBytes {
			return
		}
		c.removeLocked(e, "pressure")
	}
}

// removeLocked drops e; an empty reason means a caller-initiated delete.
func (c *Cache[V]) removeLocked(e *entry[V], reason string) {
	delete(c.entries, e.key)
	c.used -= e.sizeBytes
	if reason != "" {
		c.stats.Evictions++
		if c.cfg.Name != "" {
			metrics.CacheEvictions.WithLabelValues(c.cfg.Name, reason).Inc()
		}
	}
	c.recordSize()
}

func (c *Cache[V]) recordHit() {
	c.stats.Hits++
	if c.cfg.Name != "" {
		metrics.CacheHits.WithLabelValues(c.cfg.Name).Inc()
	}
}

func (c *Cache[V]) recordMiss() {
	c.stats.Misses++
	if c.cfg.Name != "" {
		metrics.CacheMisses.WithLabelValues(c.cfg.Name).Inc()
	}
}

func (c *Cache[V]) recordSize() {
	if c.cfg.Name != "" {
		metrics.CacheEntries.WithLabelValues(c.cfg.Name).Set(float64(len(c.entries)))
	}
}

func estimateSize(v any) int64 {
	data, err := json.Marshal(v)
	if err != nil || len(data) == 0 {
		return fallbackEntrySize
	}
	return int64(len(data))
}
