package smartcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(clock *fakeClock, maxEntries int, maxMemory int64) *Cache[string] {
	return New[string](Config{
		MaxEntries:     maxEntries,
		MaxMemoryBytes: maxMemory,
		DefaultTTL:     time.Hour,
		Now:            clock.Now,
	})
}

func TestGetSet(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 10, 1<<20)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	require.True(t, c.Set("a", "alpha"))
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", v)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 1, s.Entries)
}

func TestZeroTTLIsImmediateMiss(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 10, 1<<20)

	c.Set("k", "v", WithTTL(0))
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestExpiryAfterTTL(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 10, 1<<20)

	c.Set("k", "v", WithTTL(time.Minute))
	clock.Advance(time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok, "exactly at createdAt+ttl is still fresh")

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMaxEntriesBound(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 5, 1<<20)

	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v")
		clock.Advance(time.Second)
		assert.LessOrEqual(t, c.Len(), 5)
	}
	assert.Equal(t, 5, c.Len())
}

func TestMaxMemoryBound(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 100, 100)

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v", WithSize(30))
		clock.Advance(time.Second)
		assert.LessOrEqual(t, c.Stats().MemoryBytes, int64(100))
	}
	assert.Equal(t, 3, c.Len())

	assert.False(t, c.Set("huge", "v", WithSize(101)))
}

func TestEvictionPrefersLowScore(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 3, 1<<20)

	c.Set("cold", "v", WithPriority(Low))
	c.Set("hot", "v", WithPriority(High))
	c.Set("warm", "v", WithPriority(Medium))
	clock.Advance(10 * time.Second)
	for i := 0; i < 5; i++ {
		c.Get("hot")
		c.Get("warm")
	}
	clock.Advance(10 * time.Second)

	c.Set("new", "v")

	_, ok := c.Get("cold")
	assert.False(t, ok, "low priority, never read entry goes first")
	_, ok = c.Get("hot")
	assert.True(t, ok)
	_, ok = c.Get("warm")
	assert.True(t, ok)
	_, ok = c.Get("new")
	assert.True(t, ok)
}

func TestEvictionUsesPriorityWeight(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 2, 1<<20)

	c.Set("low", "v", WithPriority(Low))
	c.Set("high", "v", WithPriority(High))
	clock.Advance(time.Minute)

	c.Set("third", "v")
	_, ok := c.Get("low")
	assert.False(t, ok)
	_, ok = c.Get("high")
	assert.True(t, ok)
}

func TestExpiredEntriesEvictedFirst(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 2, 1<<20)

	c.Set("short", "v", WithTTL(time.Second), WithPriority(High))
	c.Set("long", "v", WithPriority(Low))
	clock.Advance(2 * time.Second)

	c.Set("third", "v")
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("long")
	assert.True(t, ok)
}

func TestInvalidateByTag(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 100, 1<<20)

	c.Set("p1", "v", WithTags("user:1", "profile"))
	c.Set("p2", "v", WithTags("user:2", "profile"))
	c.Set("e1", "v", WithTags("user:1"))
	c.Set("t", "v", WithTags("trending"))
	c.Set("none", "v")

	assert.Equal(t, 2, c.InvalidateByTag("user:1"))
	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("p2")
	assert.True(t, ok)
	_, ok = c.Get("t")
	assert.True(t, ok)
	_, ok = c.Get("none")
	assert.True(t, ok)

	assert.Equal(t, 0, c.InvalidateByTag("user:1"))
	assert.Equal(t, 1, c.InvalidateByTag("profile"))
}

func TestSweepRemovesLapsedEntries(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 100, 1<<20)

	c.Set("a", "v", WithTTL(time.Second))
	c.Set("b", "v", WithTTL(time.Second))
	c.Set("c", "v", WithTTL(time.Hour))
	clock.Advance(5 * time.Second)

	assert.Equal(t, 2, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestBackgroundSweep(t *testing.T) {
	c := New[string](Config{SweepInterval: 10 * time.Millisecond})
	defer c.Close()

	c.Set("gone", "v", WithTTL(time.Millisecond))
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestOverwriteKeepsAccounting(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 10, 1000)

	c.Set("k", "v", WithSize(100))
	c.Set("k", "v", WithSize(40))
	assert.Equal(t, int64(40), c.Stats().MemoryBytes)
	assert.Equal(t, 1, c.Len())
}

func TestGetOrLoad(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 10, 1<<20)
	ctx := context.Background()

	var calls atomic.Int32
	load := func(context.Context) (string, error) {
		calls.Add(1)
		return "loaded", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(ctx, "k", load)
			assert.NoError(t, err)
			assert.Equal(t, "loaded", v)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(10))

	before := calls.Load()
	_, err := c.GetOrLoad(ctx, "k", load)
	require.NoError(t, err)
	assert.Equal(t, before, calls.Load())

	boom := errors.New("boom")
	_, err = c.GetOrLoad(ctx, "bad", func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get("bad")
	assert.False(t, ok)
}

func TestGetOrLoadSurvivesStarterCancellation(t *testing.T) {
	c := newTestCache(newFakeClock(), 10, 1<<20)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	var loadErr atomic.Value
	load := func(ctx context.Context) (string, error) {
		calls.Add(1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			loadErr.Store(err)
			return "", err
		}
		return "loaded", nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrLoad(firstCtx, "k", load)
		firstErr <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	second := make(chan string, 1)
	go func() {
		v, err := c.GetOrLoad(context.Background(), "k", load)
		assert.NoError(t, err)
		second <- v
	}()
	close(release)

	assert.Equal(t, "loaded", <-second)
	assert.Nil(t, loadErr.Load(), "load ctx must not inherit the starter's cancellation")
	assert.Equal(t, int32(1), calls.Load())
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "loaded", v)
}

func TestGetOrLoadTimeout(t *testing.T) {
	c := New[string](Config{MaxEntries: 10, LoadTimeout: 20 * time.Millisecond})
	t.Cleanup(c.Close)

	_, err := c.GetOrLoad(context.Background(), "slow", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, ok := c.Get("slow")
	assert.False(t, ok)
}

func TestConcurrentSetRespectsBounds(t *testing.T) {
	c := New[int](Config{MaxEntries: 20, MaxMemoryBytes: 1 << 20})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Set(fmt.Sprintf("%d-%d", w, i), i)
				c.Get(fmt.Sprintf("%d-%d", w, i/2))
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 20)
}
