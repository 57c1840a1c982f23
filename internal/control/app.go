// Package control wires storage, notification, the monitor, and the
// health server into one application lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anemtools/rdvwatcher/internal/core/config"
	"github.com/anemtools/rdvwatcher/internal/engine"
	"github.com/anemtools/rdvwatcher/internal/engine/health"
	"github.com/anemtools/rdvwatcher/internal/infra/storage"
	"github.com/anemtools/rdvwatcher/internal/infra/storage/memory"
	"github.com/anemtools/rdvwatcher/internal/infra/storage/postgres"
	"github.com/anemtools/rdvwatcher/internal/notify"
)

// App is the assembled application.
type App struct {
	cfg          config.AppConfig
	monitor      *engine.Monitor
	roster       *engine.Roster
	repo         storage.MemberRepository
	db           *postgres.DB
	redis        *notify.RedisPublisher
	healthServer *health.Server
	log          *slog.Logger
}

// NewApp creates the application with all dependencies initialized.
func NewApp(ctx context.Context, cfg config.AppConfig) (*App, error) {
	var (
		repo storage.MemberRepository
		db   *postgres.DB
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		repo = postgres.NewMemberRepo(db)
		slog.Info("using PostgreSQL storage")
	} else {
		repo = memory.NewMemberRepo()
		slog.Info("using in-memory storage")
	}

	members, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	roster := engine.NewRoster(members)
	slog.Info("roster loaded", "members", roster.Len())

	notifiers := notify.Multi{notify.Nop{}}
	var redisPub *notify.RedisPublisher
	if cfg.Redis.URL != "" {
		redisPub, err = notify.NewRedisPublisher(cfg.Redis)
		if err != nil {
			slog.Warn("failed to connect to Redis, event publishing disabled", "error", err)
		} else {
			notifiers = append(notifiers, redisPub)
			slog.Info("Redis event publishing enabled")
		}
	}

	docs := engine.NewDocumentStore(cfg.Documents.BaseDir)
	monitor := engine.NewMonitor(cfg.Service, cfg.Engine, roster, repo, notifiers, docs)
	healthServer := health.NewServer(monitor, cfg.Server.Port)

	return &App{
		cfg:          cfg,
		monitor:      monitor,
		roster:       roster,
		repo:         repo,
		db:           db,
		redis:        redisPub,
		healthServer: healthServer,
		log:          slog.Default(),
	}, nil
}

// Monitor returns the scheduler, for ad-hoc operations.
func (a *App) Monitor() *engine.Monitor { return a.monitor }

// Repo returns the roster repository.
func (a *App) Repo() storage.MemberRepository { return a.repo }

// Start starts the health server and the monitor loop. It blocks until
// the context is cancelled.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("health server failed", "error", err)
		}
	}()

	return a.monitor.Run(ctx)
}

// Stop flushes state and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	if err := a.repo.SaveAll(ctx, a.roster.Snapshot()); err != nil {
		a.log.Warn("failed to save roster on shutdown", "error", err)
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed to close database", "error", err)
		}
	}

	return a.healthServer.Stop(ctx)
}
