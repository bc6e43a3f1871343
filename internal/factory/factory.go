package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mcoot/chaosroom/internal/audit"
	"github.com/mcoot/chaosroom/internal/catalog"
	"github.com/mcoot/chaosroom/internal/dependencies/clock"
	"github.com/mcoot/chaosroom/internal/dependencies/random"
	"github.com/mcoot/chaosroom/internal/scheduler"
	"github.com/mcoot/chaosroom/internal/services/auth"
	"github.com/mcoot/chaosroom/internal/services/chaos"
	"github.com/mcoot/chaosroom/internal/services/leaderboard"
	"github.com/mcoot/chaosroom/internal/services/session"
	"github.com/mcoot/chaosroom/internal/storage"
	"github.com/mcoot/chaosroom/internal/storage/memory"
	redisstorage "github.com/mcoot/chaosroom/internal/storage/redis"
	"github.com/mcoot/chaosroom/internal/web/sse"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Store
	Audit   audit.Recorder

	// External dependencies
	Clock  clock.Clock
	Random random.Random
	Logger *slog.Logger

	// Services
	Catalog            *catalog.Catalog
	Chaos              *chaos.Driver
	SessionService     *session.Service
	LeaderboardService *leaderboard.Service
	AuthService        *auth.Service
	HubManager         *sse.HubManager
	Broadcaster        *sse.Broadcaster

	scheduler *scheduler.Scheduler
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// Redis holds connection settings, used when StorageType is "redis"
	Redis redisstorage.Config
	// CatalogPath overrides the built-in mission table with a JSON file (optional)
	CatalogPath string

	Session     session.Config
	Chaos       chaos.Config
	Leaderboard leaderboard.Config
	Auth        auth.Config
	Audit       audit.Config
	Scheduler   scheduler.Config
}

// DefaultConfig returns the configuration of a single-node event server
func DefaultConfig() Config {
	return Config{
		StorageType: StorageTypeMemory,
		Redis:       redisstorage.DefaultConfig(),
		Session:     session.DefaultConfig(),
		Chaos:       chaos.DefaultConfig(),
		Leaderboard: leaderboard.DefaultConfig(),
		Auth:        auth.DefaultConfig(),
		Audit:       audit.DefaultConfig(),
		Scheduler:   scheduler.DefaultConfig(),
	}
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	clk := clock.New()
	rnd := random.New()

	// Create storage based on type
	var store storage.Store
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New(clk)
	case StorageTypeRedis:
		redisStore, err := redisstorage.New(cfg.Redis)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		loaded, err := catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		cat = loaded
	}

	var recorder audit.Recorder
	if cfg.Audit.Dialect == audit.DialectNone || cfg.Audit.Dialect == "" {
		recorder = audit.NewMemoryRecorder()
	} else {
		repo, err := audit.Open(ctx, cfg.Audit)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("audit log: %w", err)
		}
		recorder = repo
	}

	logger.Info("application configured",
		slog.String("storage", storageType),
		slog.String("audit", string(cfg.Audit.Dialect)),
		slog.Int("missions", len(cat.All())),
	)

	return newWithDependencies(store, recorder, cat, clk, rnd, cfg, logger), nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Store, recorder audit.Recorder, cat *catalog.Catalog, clk clock.Clock, rnd random.Random, cfg Config, logger *slog.Logger) *App {
	driver := chaos.New(cfg.Chaos)
	sessionService := session.New(store, cat, driver, recorder, clk, rnd, logger, cfg.Session)
	leaderboardService := leaderboard.New(store, cfg.Leaderboard)
	authService := auth.New(store, sessionService, clk, logger, cfg.Auth)
	hubManager := sse.NewHubManager(logger)
	broadcaster := sse.NewBroadcaster(hubManager, leaderboardService, logger)

	return &App{
		Storage:            store,
		Audit:              recorder,
		Clock:              clk,
		Random:             rnd,
		Logger:             logger,
		Catalog:            cat,
		Chaos:              driver,
		SessionService:     sessionService,
		LeaderboardService: leaderboardService,
		AuthService:        authService,
		HubManager:         hubManager,
		Broadcaster:        broadcaster,
	}
}

// StartBackgroundJobs schedules housekeeping: expired session cleanup, idle
// SSE hub cleanup and, when enabled, the server-side mission sweeper
func (a *App) StartBackgroundJobs(cfg scheduler.Config) error {
	sched, err := scheduler.New(a.Logger)
	if err != nil {
		return err
	}

	if err := sched.Every("session-cleanup", cfg.SessionCleanupInterval, func(ctx context.Context) error {
		a.AuthService.CleanExpiredSessions()
		return nil
	}); err != nil {
		return err
	}
	if err := sched.Every("sse-hub-cleanup", cfg.HubCleanupInterval, a.Broadcaster.Cleanup); err != nil {
		return err
	}
	if cfg.SweepExpiredMissions {
		if err := sched.Every("mission-sweeper", cfg.SweepInterval, func(ctx context.Context) error {
			_, err := a.SessionService.ExpireStale(ctx)
			return err
		}); err != nil {
			return err
		}
	}

	sched.Start()
	a.scheduler = sched
	return nil
}

// Close stops background work and releases the store and audit log
func (a *App) Close() error {
	var errs []error
	if a.scheduler != nil {
		errs = append(errs, a.scheduler.Shutdown())
	}
	a.HubManager.Close()
	errs = append(errs, a.Audit.Close(), a.Storage.Close())
	return errors.Join(errs...)
}
