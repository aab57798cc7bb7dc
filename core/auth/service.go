package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/melodix/core/device"
	"github.com/dmitrymomot/melodix/core/session"
	"github.com/dmitrymomot/melodix/core/twofactor"
	"github.com/dmitrymomot/melodix/core/user"
	"github.com/dmitrymomot/melodix/pkg/password"
)

var (
	// ErrInvalidCredentials covers unknown users and wrong passwords
	// alike, so responses never reveal which one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidFactor is returned on a step-2 factor mismatch. The step
	// token stays valid for retry until its own TTL runs out.
	ErrInvalidFactor = errors.New("invalid second factor")
)

// Config controls the login protocol.
type Config struct {
	// StepTokenTTL bounds the window between password entry and the
	// second factor.
	StepTokenTTL time.Duration `env:"AUTH_STEP_TOKEN_TTL" envDefault:"5m"`
}

// Service implements registration and the two-step login protocol. The
// only state transitions are AwaitingPassword -> AwaitingSecondFactor ->
// Completed; failed factor attempts do not count or lock, they simply
// retry against the same step token until it expires.
type Service struct {
	users    user.Store
	profiles twofactor.Store
	verifier *twofactor.Verifier
	registry *device.Registry
	sessions *session.Manager
	steps    StepTokenStore
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// NewService wires the login protocol together.
func NewService(
	users user.Store,
	profiles twofactor.Store,
	verifier *twofactor.Verifier,
	registry *device.Registry,
	sessions *session.Manager,
	steps StepTokenStore,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.StepTokenTTL <= 0 {
		cfg.StepTokenTTL = DefaultStepTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		profiles: profiles,
		verifier: verifier,
		registry: registry,
		sessions: sessions,
		steps:    steps,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RegisterParams shape a new account.
type RegisterParams struct {
	Username    string
	Email       string
	Password    string
	IsAdmin     bool
	Fingerprint string
	Device      session.DeviceInfo
}

// RegisterResult is the outcome of registration. DeviceToken is set when
// a fingerprint was presented and trusted first-use.
type RegisterResult struct {
	User        *user.User
	DeviceToken string
}

// Register creates the account, its credential and security profile, and
// trusts the registering device so the first login skips the second factor.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*RegisterResult, error) {
	hash, err := password.Hash(params.Password)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	now := s.now().UTC()
	u := &user.User{
		ID:        uuid.New(),
		Username:  params.Username,
		Email:     params.Email,
		IsAdmin:   params.IsAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cred := &user.Credential{UserID: u.ID, PasswordHash: hash, UpdatedAt: now}

	if err := s.users.Create(ctx, u, cred); err != nil {
		return nil, err
	}
	if _, err := s.profiles.Ensure(ctx, u.ID); err != nil {
		return nil, err
	}

	result := &RegisterResult{User: u}
	if params.Fingerprint != "" {
		token, err := s.registry.Trust(ctx, u.ID, params.Fingerprint, device.Info{
			UserAgent: params.Device.UserAgent,
			IP:        params.Device.IP,
		})
		if err != nil {
			return nil, err
		}
		result.DeviceToken = token
	}
	return result, nil
}

// Step1Params carry the password step of login.
type Step1Params struct {
	Username    string
	Password    string
	Fingerprint string
	Device      session.DeviceInfo
}

// Step1Result is the outcome of the password step. Either Session is set
// (trusted device, login complete) or StepToken and AvailableMethods are.
type Step1Result struct {
	RequiresStep2    bool
	Session          *session.Session
	StepToken        string
	AvailableMethods []twofactor.Method
	ExpiresIn        int
}

// LoginStep1 verifies the password. Any failure, unknown username
// included, comes back as ErrInvalidCredentials. On success a trusted
// fingerprint completes login immediately; otherwise a step token is
// minted and the caller proceeds to the second factor.
func (s *Service) LoginStep1(ctx context.Context, params Step1Params) (*Step1Result, error) {
	// Short-TTL tokens are swept here instead of on a timer.
	if err := s.steps.Sweep(ctx, s.now()); err != nil {
		s.logger.ErrorContext(ctx, "step token sweep failed", slog.Any("error", err))
	}

	u, err := s.users.ByUsername(ctx, params.Username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: lookup user: %w", err)
	}
	cred, err := s.users.Credential(ctx, u.ID)
	if err != nil {
		if errors.Is(err, user.ErrCredentialNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: lookup credential: %w", err)
	}

	ok, err := password.Verify(params.Password, cred.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	if _, err := s.registry.IsTrusted(ctx, u.ID, params.Fingerprint); err == nil {
		sess, err := s.sessions.Create(ctx, u.ID, u.IsAdmin, params.Device)
		if err != nil {
			return nil, err
		}
		return &Step1Result{Session: sess}, nil
	}

	token, err := generateStepToken()
	if err != nil {
		return nil, fmt.Errorf("auth: generate step token: %w", err)
	}

	now := s.now().UTC()
	step := &StepToken{
		Token:       token,
		UserID:      u.ID,
		Fingerprint: params.Fingerprint,
		IsAdmin:     u.IsAdmin,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.StepTokenTTL),
	}
	if err := s.steps.Save(ctx, step); err != nil {
		return nil, fmt.Errorf("auth: save step token: %w", err)
	}

	profile, err := s.profiles.Ensure(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	return &Step1Result{
		RequiresStep2:    true,
		StepToken:        token,
		AvailableMethods: profile.AvailableMethods(cred.TOTPEnabled(), now),
		ExpiresIn:        int(s.cfg.StepTokenTTL.Seconds()),
	}, nil
}

// Step2Params carry the second-factor step of login.
type Step2Params struct {
	StepToken string
	Method    twofactor.Method
	Code      string
	Device    session.DeviceInfo
}

// Step2Result is a completed login.
type Step2Result struct {
	Session     *session.Session
	Method      twofactor.Method
	DeviceToken string
}

// LoginStep2 completes login with a second factor. An absent or expired
// step token forces a restart at step 1. A factor mismatch leaves the
// token untouched so the caller may retry within the original TTL. On
// success the token is consumed, the device trusted, and a session issued.
func (s *Service) LoginStep2(ctx context.Context, params Step2Params) (*Step2Result, error) {
	step, err := s.steps.Find(ctx, params.StepToken)
	if err != nil {
		return nil, err
	}
	if step.Expired(s.now()) {
		_ = s.steps.Delete(ctx, params.StepToken)
		return nil, ErrStepTokenNotFound
	}

	method, err := s.verifier.Verify(ctx, step.UserID, params.Method, params.Code)
	if err != nil {
		if errors.Is(err, twofactor.ErrInvalidCode) {
			return nil, ErrInvalidFactor
		}
		return nil, err
	}

	if err := s.steps.Delete(ctx, params.StepToken); err != nil {
		s.logger.ErrorContext(ctx, "failed to consume step token", slog.Any("error", err))
	}

	var deviceToken string
	if step.Fingerprint != "" {
		deviceToken, err = s.registry.Trust(ctx, step.UserID, step.Fingerprint, device.Info{
			UserAgent: params.Device.UserAgent,
			IP:        params.Device.IP,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to trust device after login", slog.Any("error", err))
		}
	}

	sess, err := s.sessions.Create(ctx, step.UserID, step.IsAdmin, params.Device)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "second factor verified",
		slog.String("user_id", step.UserID.String()),
		slog.String("method", string(method)))

	return &Step2Result{Session: sess, Method: method, DeviceToken: deviceToken}, nil
}

// Logout revokes the session behind the token. Unknown tokens are not an
// error; logout is idempotent.
func (s *Service) Logout(ctx context.Context, token string) error {
	err := s.sessions.Revoke(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	return err
}
