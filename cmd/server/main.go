// Command server runs the Melodix API: the two-step login flow, session
// and API key gates, and the playlist/track catalog behind them.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/melodix/core/apikey"
	"github.com/dmitrymomot/melodix/core/auth"
	"github.com/dmitrymomot/melodix/core/config"
	"github.com/dmitrymomot/melodix/core/cookie"
	"github.com/dmitrymomot/melodix/core/device"
	"github.com/dmitrymomot/melodix/core/logger"
	"github.com/dmitrymomot/melodix/core/media"
	"github.com/dmitrymomot/melodix/core/session"
	"github.com/dmitrymomot/melodix/core/twofactor"
	"github.com/dmitrymomot/melodix/core/user"
	"github.com/dmitrymomot/melodix/handlers"
	mongodb "github.com/dmitrymomot/melodix/integration/database/mongo"
	redisdb "github.com/dmitrymomot/melodix/integration/database/redis"
	"github.com/dmitrymomot/melodix/integration/email/postmark"
	"github.com/dmitrymomot/melodix/integration/storage/s3"
	"github.com/dmitrymomot/melodix/middleware"
	"github.com/dmitrymomot/melodix/pkg/ratelimiter"
	"github.com/dmitrymomot/melodix/pkg/secrets"
)

// appConfig aggregates every component's configuration. Drivers select
// the backing stores: "memory" keeps everything in-process for local
// development, "mongo"/"redis" use the external services.
type appConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// EncryptionKey protects TOTP seeds at rest, hex-encoded AES-256 key.
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	StorageDriver   string `env:"STORAGE_DRIVER" envDefault:"memory"`
	StepTokenDriver string `env:"STEP_TOKEN_DRIVER" envDefault:"memory"`
	RateLimitDriver string `env:"RATE_LIMIT_DRIVER" envDefault:"memory"`
	MongoDatabase   string `env:"MONGODB_DATABASE" envDefault:"melodix"`

	// TempCodeDelivery is "postmark" or "log"; the latter prints codes to
	// the application log for environments without an email provider.
	TempCodeDelivery string `env:"TEMP_CODE_DELIVERY" envDefault:"log"`

	// MediaStorage toggles the S3-backed track catalog. Off, uploads and
	// streaming endpoints are not mounted.
	MediaStorage bool `env:"MEDIA_STORAGE_ENABLED" envDefault:"false"`

	// Integration configs with required fields (mongo, s3, postmark,
	// redis) are loaded only when their driver is selected, so a memory
	// deployment needs none of their env vars.
	Log       logger.Config
	Cookie    cookie.Config
	Session   session.Config
	Auth      auth.Config
	TwoFactor twofactor.Config
	APIKey    apikey.Config
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	encKey, err := hex.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("decode encryption key: %w", err)
	}
	// A bad key must stop the process here, not surface as decrypt
	// failures during login.
	if err := secrets.ValidateKey(encKey); err != nil {
		return fmt.Errorf("validate encryption key: %w", err)
	}

	cookies, err := cookie.NewFromConfig(cfg.Cookie)
	if err != nil {
		return fmt.Errorf("cookie manager: %w", err)
	}

	deps, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}

	verifier := twofactor.NewVerifier(deps.profiles, deps.users, encKey)
	registry := device.NewRegistry(deps.profiles)
	sessions := session.NewManager(deps.sessionStore, cfg.Session, session.WithLogger(log))
	authSvc := auth.NewService(deps.users, deps.profiles, verifier, registry, sessions, deps.steps, log, cfg.Auth)
	twofaSvc := twofactor.NewService(deps.profiles, deps.users, deps.sender, encKey, cfg.TwoFactor)
	keySvc := apikey.NewService(deps.keys, deps.limiter, log, cfg.APIKey)

	sessions.Start(ctx)
	defer sessions.Stop()
	if deps.memoryLimiter != nil {
		if err := deps.memoryLimiter.Start(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		defer deps.memoryLimiter.Stop()
	}

	gate := middleware.NewGate(sessions, keySvc, cookies, log)
	authHandlers := handlers.NewAuth(authSvc, twofaSvc, registry, sessions, deps.users, cookies, log)
	keyHandlers := handlers.NewAPIKeys(keySvc, log)
	playlistHandlers := handlers.NewPlaylists(deps.playlists, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))

	r.Get("/health/live", handlers.Health(log))
	r.Get("/health/ready", handlers.Health(log, deps.readiness...))

	r.Group(authHandlers.PublicRoutes)
	r.Group(func(pr chi.Router) {
		pr.Use(gate.Authenticate)
		authHandlers.ProtectedRoutes(pr)
		keyHandlers.Routes(pr)
		playlistHandlers.Routes(pr)

		if cfg.MediaStorage {
			var s3cfg s3.Config
			config.MustLoad(&s3cfg)
			objects, err := s3.New(ctx, s3cfg)
			if err != nil {
				log.ErrorContext(ctx, "media storage disabled", slog.Any("error", err))
				return
			}
			handlers.NewTracks(deps.tracks, objects, log).Routes(pr)
		}
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "server listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// storeSet holds the concrete store implementations selected by the
// configured drivers.
type storeSet struct {
	users        user.Store
	profiles     twofactor.Store
	sessionStore session.Store
	keys         apikey.Store
	steps        auth.StepTokenStore
	playlists    media.PlaylistStore
	tracks       media.TrackStore
	limiter      ratelimiter.Store
	sender       twofactor.TempCodeSender

	// memoryLimiter is set when the in-process limiter needs its sweeper
	// started alongside the server.
	memoryLimiter *ratelimiter.MemoryStore

	readiness []func(context.Context) error
}

func buildStores(ctx context.Context, cfg appConfig, log *slog.Logger) (*storeSet, error) {
	deps := &storeSet{}

	switch cfg.StorageDriver {
	case "memory":
		deps.users = user.NewMemoryStore()
		deps.profiles = twofactor.NewMemoryStore()
		deps.sessionStore = session.NewMemoryStore()
		deps.keys = apikey.NewMemoryStore()
		deps.playlists = media.NewMemoryPlaylistStore()
		deps.tracks = media.NewMemoryTrackStore()
	case "mongo":
		var mongoCfg mongodb.Config
		config.MustLoad(&mongoCfg)
		client, err := mongodb.New(ctx, mongoCfg)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		db := client.Database(cfg.MongoDatabase)

		users, err := user.NewMongoStore(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("user store: %w", err)
		}
		sessionStore, err := session.NewMongoStore(ctx, db, "sessions")
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		keyStore, err := apikey.NewMongoStore(ctx, db, "api_keys")
		if err != nil {
			return nil, fmt.Errorf("api key store: %w", err)
		}
		playlists, err := media.NewMongoPlaylistStore(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("playlist store: %w", err)
		}
		tracks, err := media.NewMongoTrackStore(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("track store: %w", err)
		}

		deps.users = users
		deps.profiles = twofactor.NewMongoStore(db, "twofactor_profiles")
		deps.sessionStore = sessionStore
		deps.keys = keyStore
		deps.playlists = playlists
		deps.tracks = tracks
		deps.readiness = append(deps.readiness, mongodb.Healthcheck(client))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	needsRedis := cfg.StepTokenDriver == "redis" || cfg.RateLimitDriver == "redis"
	if needsRedis {
		var redisCfg redisdb.Config
		config.MustLoad(&redisCfg)
		client, err := redisdb.Connect(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		deps.readiness = append(deps.readiness, redisdb.Healthcheck(client))

		if cfg.StepTokenDriver == "redis" {
			deps.steps = auth.NewRedisStepTokenStore(client)
		}
		if cfg.RateLimitDriver == "redis" {
			deps.limiter = ratelimiter.NewRedisStore(client, "ratelimit:")
		}
	}
	if deps.steps == nil {
		deps.steps = auth.NewMemoryStepTokenStore()
	}
	if deps.limiter == nil {
		ms := ratelimiter.NewMemoryStore(ratelimiter.WithLogger(log))
		deps.limiter = ms
		deps.memoryLimiter = ms
	}

	switch cfg.TempCodeDelivery {
	case "postmark":
		var pmCfg postmark.Config
		config.MustLoad(&pmCfg)
		sender, err := postmark.New(pmCfg)
		if err != nil {
			return nil, fmt.Errorf("postmark: %w", err)
		}
		deps.sender = sender
	default:
		deps.sender = logSender{log: log}
	}
	return deps, nil
}

// logSender writes temp codes to the log instead of sending email. Local
// development only.
type logSender struct {
	log *slog.Logger
}

func (s logSender) SendTempCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	s.log.InfoContext(ctx, "temp code issued",
		slog.String("email", email),
		slog.String("code", code),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}
