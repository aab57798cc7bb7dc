package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/melodix/core/session"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, cfg session.Config) (*session.Manager, *session.MemoryStore, *testClock) {
	t.Helper()

	store := session.NewMemoryStore()
	clock := &testClock{now: time.Now().UTC()}
	mgr := session.NewManager(store, cfg, session.WithClock(clock.Now))
	return mgr, store, clock
}

func TestManagerCreateAndResolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, _, _ := newTestManager(t, session.Config{TTL: time.Hour})
	userID := uuid.New()

	sess, err := mgr.Create(ctx, userID, true, session.DeviceInfo{UserAgent: "curl/8.0"})
	require.NoError(t, err)

	resolved, err := mgr.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, resolved.UserID)
	assert.True(t, resolved.IsAdmin)
}

func TestManagerResolveUnknownToken(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t, session.Config{})
	_, err := mgr.Resolve(context.Background(), "mlx_sess_doesnotexist")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestManagerRevokesOnExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, store, clock := newTestManager(t, session.Config{TTL: time.Hour})

	sess, err := mgr.Create(ctx, uuid.New(), false, session.DeviceInfo{})
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Second)

	// An expired session is explicitly revoked, not silently skipped:
	// even a direct store lookup must now fail.
	_, err = mgr.Resolve(ctx, sess.Token)
	assert.ErrorIs(t, err, session.ErrExpired)

	_, err = store.FindActive(ctx, sess.Token)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestManagerTouchThrottling(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, store, clock := newTestManager(t, session.Config{TTL: time.Hour, TouchInterval: 5 * time.Minute})

	sess, err := mgr.Create(ctx, uuid.New(), false, session.DeviceInfo{})
	require.NoError(t, err)

	// Within the interval: last_active stays put.
	clock.Advance(time.Minute)
	_, err = mgr.Resolve(ctx, sess.Token)
	require.NoError(t, err)

	stored, err := store.FindActive(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.LastActive, stored.LastActive)

	// Past the interval: last_active advances.
	clock.Advance(5 * time.Minute)
	resolved, err := mgr.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	assert.True(t, resolved.LastActive.After(sess.LastActive))

	stored, err = store.FindActive(ctx, sess.Token)
	require.NoError(t, err)
	assert.True(t, stored.LastActive.After(sess.LastActive))
}

func TestManagerTouchEveryAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, store, clock := newTestManager(t, session.Config{TTL: time.Hour, TouchInterval: 0})

	sess, err := mgr.Create(ctx, uuid.New(), false, session.DeviceInfo{})
	require.NoError(t, err)

	// Zero interval disables the throttle: every resolve writes.
	clock.Advance(time.Second)
	_, err = mgr.Resolve(ctx, sess.Token)
	require.NoError(t, err)

	stored, err := store.FindActive(ctx, sess.Token)
	require.NoError(t, err)
	first := stored.LastActive
	assert.True(t, first.After(sess.LastActive))

	clock.Advance(time.Second)
	_, err = mgr.Resolve(ctx, sess.Token)
	require.NoError(t, err)

	stored, err = store.FindActive(ctx, sess.Token)
	require.NoError(t, err)
	assert.True(t, stored.LastActive.After(first))
}

func TestManagerRevokeAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, _, _ := newTestManager(t, session.Config{TTL: time.Hour})
	userID := uuid.New()

	var tokens []string
	for n := 0; n < 3; n++ {
		sess, err := mgr.Create(ctx, userID, false, session.DeviceInfo{})
		require.NoError(t, err)
		tokens = append(tokens, sess.Token)
	}

	n, err := mgr.RevokeAll(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, token := range tokens {
		_, err := mgr.Resolve(ctx, token)
		assert.ErrorIs(t, err, session.ErrNotFound)
	}
}
