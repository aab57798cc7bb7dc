package ratelimiter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// entry holds the recorded timestamps for one key. Each entry carries its own
// lock so concurrent checks on different keys never contend.
type entry struct {
	mu         sync.Mutex
	minute     []time.Time
	hour       []time.Time
	lastAccess time.Time
}

// MemoryStore implements Store with in-process timestamp lists.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry

	cleanupInterval time.Duration
	logger          *slog.Logger

	cancel  context.CancelFunc
	running atomic.Bool

	// now is swappable for tests.
	now func() time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often stale keys are removed.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.cleanupInterval = interval
	}
}

// WithLogger sets the logger for background operations.
func WithLogger(logger *slog.Logger) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if logger != nil {
			ms.logger = logger
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

// NewMemoryStore creates an in-memory sliding-window store.
// Call Start to begin background cleanup of stale keys.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		entries:         make(map[string]*entry),
		cleanupInterval: 5 * time.Minute,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(ms)
	}
	return ms
}

// Take implements Store.
func (ms *MemoryStore) Take(_ context.Context, key string, limit Limit) (Result, error) {
	if limit.IsZero() {
		return Result{Allowed: true}, nil
	}

	e := ms.entry(key)
	now := ms.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastAccess = now
	e.minute = prune(e.minute, now.Add(-MinuteWindow))
	e.hour = prune(e.hour, now.Add(-HourWindow))

	if limit.PerMinute > 0 && len(e.minute) >= limit.PerMinute {
		return Result{
			Allowed:    false,
			ResetAfter: e.minute[0].Add(MinuteWindow).Sub(now),
		}, nil
	}
	if limit.PerHour > 0 && len(e.hour) >= limit.PerHour {
		return Result{
			Allowed:    false,
			ResetAfter: e.hour[0].Add(HourWindow).Sub(now),
		}, nil
	}

	e.minute = append(e.minute, now)
	e.hour = append(e.hour, now)

	return Result{Allowed: true, Remaining: remaining(limit, len(e.minute), len(e.hour))}, nil
}

// Reset implements Store.
func (ms *MemoryStore) Reset(_ context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.entries, key)
	return nil
}

// Start runs the stale-key cleanup loop until the context is cancelled.
// Lock order is always map lock before per-key lock; request paths release
// the map lock before taking a key's, so the sweep cannot deadlock them.
func (ms *MemoryStore) Start(ctx context.Context) error {
	if ms.cleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be > 0, got %v", ms.cleanupInterval)
	}
	if !ms.running.CompareAndSwap(false, true) {
		return fmt.Errorf("memory store already started")
	}
	defer ms.running.Store(false)

	ctx, ms.cancel = context.WithCancel(ctx)

	ms.logger.InfoContext(ctx, "rate limit cleanup started",
		slog.Duration("cleanup_interval", ms.cleanupInterval))

	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ms.removeStale()
		}
	}
}

// Stop cancels a running cleanup loop.
func (ms *MemoryStore) Stop() {
	if ms.cancel != nil {
		ms.cancel()
	}
}

// removeStale drops keys that have not been checked recently. The threshold
// is just past the hour window: anything older cannot influence a decision.
func (ms *MemoryStore) removeStale() {
	const staleThreshold = HourWindow + 5*time.Minute
	now := ms.now()

	ms.mu.Lock()
	defer ms.mu.Unlock()

	removed := 0
	for key, e := range ms.entries {
		e.mu.Lock()
		stale := now.Sub(e.lastAccess) > staleThreshold
		e.mu.Unlock()
		if stale {
			delete(ms.entries, key)
			removed++
		}
	}

	if removed > 0 {
		ms.logger.Debug("removed stale rate limit keys", slog.Int("count", removed))
	}
}

func (ms *MemoryStore) entry(key string) *entry {
	ms.mu.RLock()
	e, ok := ms.entries[key]
	ms.mu.RUnlock()
	if ok {
		return e
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if e, ok = ms.entries[key]; ok {
		return e
	}
	e = &entry{}
	ms.entries[key] = e
	return e
}

// prune drops timestamps at or before the cutoff. Slices are kept sorted by
// construction, so a single scan finds the boundary.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

func remaining(limit Limit, minuteUsed, hourUsed int) int {
	rem := -1
	if limit.PerMinute > 0 {
		rem = limit.PerMinute - minuteUsed
	}
	if limit.PerHour > 0 {
		if hr := limit.PerHour - hourUsed; rem < 0 || hr < rem {
			rem = hr
		}
	}
	if rem < 0 {
		rem = 0
	}
	return rem
}
