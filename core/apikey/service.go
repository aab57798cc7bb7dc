package apikey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/melodix/core/auth"
	"github.com/dmitrymomot/melodix/pkg/async"
	"github.com/dmitrymomot/melodix/pkg/ratelimiter"
)

// Config controls key issuance and per-key rate limiting defaults.
type Config struct {
	// Environment selects the namespace of newly issued keys.
	Environment Environment `env:"APIKEY_ENVIRONMENT" envDefault:"live"`

	// DefaultPerMinute and DefaultPerHour set the rate ceilings for keys
	// created without an explicit limit.
	DefaultPerMinute int `env:"APIKEY_RATE_PER_MINUTE" envDefault:"60"`
	DefaultPerHour   int `env:"APIKEY_RATE_PER_HOUR" envDefault:"1000"`

	// UsageTimeout bounds the fire-and-forget usage write.
	UsageTimeout time.Duration `env:"APIKEY_USAGE_TIMEOUT" envDefault:"5s"`
}

// RateLimitError carries the reset hint for a 429 response.
type RateLimitError struct {
	ResetSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets in %ds", e.ResetSeconds)
}

// CreateParams shape a new key. Zero values fall back to role defaults.
type CreateParams struct {
	Name        string
	Role        auth.Role
	Permissions []string
	AllowedIPs  []string
	RateLimit   ratelimiter.Limit
	ExpiresAt   *time.Time

	// CreatedBy is the principal that issued the key. It differs from the
	// owning user when an admin mints a key on someone's behalf.
	CreatedBy uuid.UUID
}

// Service issues and authenticates API keys.
type Service struct {
	store   Store
	limiter ratelimiter.Store
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
}

// NewService creates the service. The limiter store may be shared with
// other consumers; keys are namespaced internally.
func NewService(store Store, limiter ratelimiter.Store, logger *slog.Logger, cfg Config) *Service {
	if cfg.Environment == "" {
		cfg.Environment = EnvLive
	}
	if cfg.DefaultPerMinute <= 0 {
		cfg.DefaultPerMinute = 60
	}
	if cfg.DefaultPerHour <= 0 {
		cfg.DefaultPerHour = 1000
	}
	if cfg.UsageTimeout <= 0 {
		cfg.UsageTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		limiter: limiter,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Create issues a key for the user and returns the record together with
// the plaintext, which is never stored and never shown again.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, params CreateParams) (*APIKey, string, error) {
	role := params.Role
	if role == "" {
		role = auth.RoleUser
	}
	perms := params.Permissions
	if len(perms) == 0 {
		perms = DefaultPermissions(role)
	}
	limit := params.RateLimit
	if limit.IsZero() {
		limit = ratelimiter.Limit{PerMinute: s.cfg.DefaultPerMinute, PerHour: s.cfg.DefaultPerHour}
	}

	gen, err := Generate(s.cfg.Environment)
	if err != nil {
		return nil, "", err
	}

	createdBy := params.CreatedBy
	if createdBy == uuid.Nil {
		createdBy = userID
	}

	key := &APIKey{
		KeyID:       gen.KeyID,
		KeyHash:     gen.KeyHash,
		UserID:      userID,
		CreatedBy:   createdBy,
		Role:        role,
		Name:        params.Name,
		Environment: s.cfg.Environment,
		Permissions: perms,
		AllowedIPs:  params.AllowedIPs,
		RateLimit:   limit,
		IsActive:    true,
		CreatedAt:   s.now().UTC(),
		ExpiresAt:   params.ExpiresAt,
	}
	if err := s.store.Save(ctx, key); err != nil {
		return nil, "", err
	}
	return key, gen.FullKey, nil
}

// Authenticate resolves a presented plaintext key into its record,
// enforcing the full chain: pattern gate, hash lookup, active and expiry
// state, IP allow-list, then the dual sliding-window rate limit. Usage
// accounting is recorded fire-and-forget after a fully successful
// resolution; its failures are logged and never surfaced.
func (s *Service) Authenticate(ctx context.Context, rawKey, clientIP string) (*APIKey, error) {
	if !WellFormed(rawKey) {
		return nil, ErrMalformedKey
	}

	key, err := s.store.ByHash(ctx, HashKey(rawKey))
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !key.IsActive {
		return nil, ErrKeyRevoked
	}
	if key.ExpiresAt != nil && !now.Before(*key.ExpiresAt) {
		return nil, ErrKeyExpired
	}
	if !IPAllowed(key.AllowedIPs, clientIP) {
		return nil, ErrIPNotAllowed
	}

	if s.limiter != nil && !key.RateLimit.IsZero() {
		res, err := s.limiter.Take(ctx, "apikey:"+key.KeyID, key.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("apikey: rate limit check: %w", err)
		}
		if !res.Allowed {
			return nil, &RateLimitError{ResetSeconds: res.ResetSeconds()}
		}
	}

	s.recordUsage(key.KeyID, now.UTC())
	return key, nil
}

// List returns the user's keys.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]APIKey, error) {
	return s.store.ListByUser(ctx, userID)
}

// Get returns one key by its public ID.
func (s *Service) Get(ctx context.Context, keyID string) (*APIKey, error) {
	return s.store.ByKeyID(ctx, keyID)
}

// Revoke deactivates a key.
func (s *Service) Revoke(ctx context.Context, keyID string) error {
	return s.store.Revoke(ctx, keyID)
}

func (s *Service) recordUsage(keyID string, at time.Time) {
	async.Fire(s.cfg.UsageTimeout, func(ctx context.Context) error {
		return s.store.RecordUsage(ctx, keyID, at)
	}, func(err error) {
		s.logger.Error("failed to record api key usage",
			slog.String("key_id", keyID), slog.Any("error", err))
	})
}
