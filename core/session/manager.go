package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager implements the session lifecycle on top of a Store: creation,
// resolution with activity tracking, revocation, and expiry sweeping.
type Manager struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used by the background sweeper.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a session manager backed by the given store.
func NewManager(store Store, cfg Config, opts ...ManagerOption) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 90 * 24 * time.Hour
	}
	if cfg.TouchInterval < 0 {
		cfg.TouchInterval = 0
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}

	m := &Manager{
		store:  store,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create issues a fresh session for the user and persists it. Every call
// generates a new random token; tokens are never reused or extended.
func (m *Manager) Create(ctx context.Context, userID uuid.UUID, isAdmin bool, info DeviceInfo) (*Session, error) {
	sess, err := New(userID, isAdmin, info, m.cfg.TTL)
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = m.now().UTC()
	sess.LastActive = sess.CreatedAt
	sess.ExpiresAt = sess.CreatedAt.Add(m.cfg.TTL)

	if err := m.store.Save(ctx, &sess); err != nil {
		return nil, fmt.Errorf("session: persist: %w", err)
	}
	return &sess, nil
}

// Resolve looks up the session for a token and enforces its validity.
// A session past its expiry is explicitly revoked in the store and
// reported as ErrExpired, never silently passed through. On success the
// session's last-active timestamp is refreshed, throttled by the
// configured touch interval.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	sess, err := m.store.FindActive(ctx, token)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	if !sess.Valid(now) {
		if revokeErr := m.store.Revoke(ctx, token); revokeErr != nil && !errors.Is(revokeErr, ErrNotFound) {
			m.logger.ErrorContext(ctx, "failed to revoke expired session", slog.Any("error", revokeErr))
		}
		return nil, ErrExpired
	}

	if now.Sub(sess.LastActive) >= m.cfg.TouchInterval {
		if err := m.store.Touch(ctx, token, now); err != nil && !errors.Is(err, ErrNotFound) {
			m.logger.ErrorContext(ctx, "failed to touch session", slog.Any("error", err))
		}
		sess.LastActive = now
	}
	return sess, nil
}

// Revoke invalidates a single session.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	return m.store.Revoke(ctx, token)
}

// RevokeAll invalidates every session belonging to the user and returns
// the number of sessions revoked.
func (m *Manager) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	return m.store.RevokeAll(ctx, userID)
}

// List returns the user's active sessions.
func (m *Manager) List(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	return m.store.ListByUser(ctx, userID)
}

// Start runs the periodic expiry sweep until Stop is called or the
// context is canceled. Stores with native TTL deletion still get swept;
// the extra pass is a no-op there.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		defer close(m.doneCh)

		ticker := time.NewTicker(m.cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				n, err := m.store.DeleteExpired(ctx, m.now().UTC())
				if err != nil {
					m.logger.ErrorContext(ctx, "session sweep failed", slog.Any("error", err))
					continue
				}
				if n > 0 {
					m.logger.InfoContext(ctx, "swept expired sessions", slog.Int64("count", n))
				}
			}
		}
	}()
}

// Stop terminates the background sweeper and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		<-m.doneCh
	})
}
