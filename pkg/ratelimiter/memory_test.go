package ratelimiter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/melodix/pkg/ratelimiter"
)

// clock is a controllable time source for window tests.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStoreMinuteWindow(t *testing.T) {
	t.Parallel()

	clk := newClock()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(clk.Now))
	ctx := context.Background()
	limit := ratelimiter.Limit{PerMinute: 3, PerHour: 100}

	for i := 0; i < 3; i++ {
		res, err := store.Take(ctx, "key-a", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should pass", i+1)
	}

	res, err := store.Take(ctx, "key-a", limit)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "4th request within the minute must be rejected")
	assert.Positive(t, res.ResetSeconds())

	// Past the window the same request passes again.
	clk.Advance(61 * time.Second)
	res, err = store.Take(ctx, "key-a", limit)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryStoreHourWindow(t *testing.T) {
	t.Parallel()

	clk := newClock()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(clk.Now))
	ctx := context.Background()
	limit := ratelimiter.Limit{PerMinute: 100, PerHour: 5}

	// Spread 5 requests over 5 minutes so the minute window never trips.
	for n := 0; n < 5; n++ {
		res, err := store.Take(ctx, "key-b", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		clk.Advance(time.Minute)
	}

	res, err := store.Take(ctx, "key-b", limit)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "6th request within the hour must be rejected")
	// Oldest request was 5 minutes ago; it leaves the window in 55 minutes.
	assert.InDelta(t, 55*60, res.ResetSeconds(), 2)
}

func TestMemoryStoreResetTimeShrinks(t *testing.T) {
	t.Parallel()

	clk := newClock()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(clk.Now))
	ctx := context.Background()
	limit := ratelimiter.Limit{PerMinute: 1}

	res, err := store.Take(ctx, "key-c", limit)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = store.Take(ctx, "key-c", limit)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	first := res.ResetAfter

	clk.Advance(30 * time.Second)
	res, err = store.Take(ctx, "key-c", limit)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	assert.Less(t, res.ResetAfter, first, "reset hint must shrink as the window slides")
}

func TestMemoryStoreKeysAreIndependent(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore()
	ctx := context.Background()
	limit := ratelimiter.Limit{PerMinute: 1}

	res, err := store.Take(ctx, "key-x", limit)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = store.Take(ctx, "key-y", limit)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a different key has its own window")
}

func TestMemoryStoreZeroLimitIsUnlimited(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore()
	ctx := context.Background()

	for n := 0; n < 100; n++ {
		res, err := store.Take(ctx, "key-z", ratelimiter.Limit{})
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
}

func TestMemoryStoreReset(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore()
	ctx := context.Background()
	limit := ratelimiter.Limit{PerMinute: 1}

	_, err := store.Take(ctx, "key-r", limit)
	require.NoError(t, err)
	res, err := store.Take(ctx, "key-r", limit)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.NoError(t, store.Reset(ctx, "key-r"))

	res, err = store.Take(ctx, "key-r", limit)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryStoreConcurrentTake(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore()
	ctx := context.Background()
	limit := ratelimiter.Limit{PerMinute: 50}

	const goroutines = 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.Take(ctx, "shared", limit)
			require.NoError(t, err)
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed, "exactly the ceiling must pass under contention")
}

func TestResultResetSecondsRoundsUp(t *testing.T) {
	t.Parallel()

	res := ratelimiter.Result{ResetAfter: 1500 * time.Millisecond}
	assert.Equal(t, 2, res.ResetSeconds())

	res = ratelimiter.Result{ResetAfter: 2 * time.Second}
	assert.Equal(t, 2, res.ResetSeconds())

	res = ratelimiter.Result{}
	assert.Equal(t, 0, res.ResetSeconds())
}
