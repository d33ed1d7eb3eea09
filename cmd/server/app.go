package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/phrazzld/reminder-api/internal/api"
	"github.com/phrazzld/reminder-api/internal/cache"
	"github.com/phrazzld/reminder-api/internal/config"
	"github.com/phrazzld/reminder-api/internal/events"
	"github.com/phrazzld/reminder-api/internal/platform/natsbus"
	"github.com/phrazzld/reminder-api/internal/platform/natskv"
	"github.com/phrazzld/reminder-api/internal/platform/postgres"
	"github.com/phrazzld/reminder-api/internal/platform/riverqueue"
	"github.com/phrazzld/reminder-api/internal/redact"
	"github.com/phrazzld/reminder-api/internal/scheduler"
	"github.com/phrazzld/reminder-api/internal/service"
	"github.com/phrazzld/reminder-api/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Connections
	db   *sql.DB
	pool *pgxpool.Pool
	nc   *nats.Conn

	// Infrastructure
	backend scheduler.Backend
	bus     events.Bus

	// Task handling
	repo       *task.Repository
	maintainer *task.Maintainer

	// Use cases
	taskFacade         *service.TaskFacade
	notificationFacade *service.NotificationFacade

	readiness map[string]api.ReadinessCheck
	started   bool
}

// newApplication creates a new application instance with all dependencies initialized.
// The database handle is established by the caller; the job pool and the
// NATS connection are opened here when the configured drivers need them.
// Nothing is started until Run.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:    cfg,
		logger:    logger,
		db:        db,
		readiness: map[string]api.ReadinessCheck{"database": db.PingContext},
	}

	if err := app.setupInfrastructure(ctx); err != nil {
		app.cleanup()
		return nil, err
	}
	if err := app.setupServices(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	logger.Info("application initialized",
		slog.String("scheduler", cfg.Scheduler.Driver),
		slog.String("events", cfg.Events.Driver),
		slog.String("cache", cfg.Cache.Driver))
	return app, nil
}

// setupInfrastructure connects the scheduler backend and the event bus.
func (app *application) setupInfrastructure(ctx context.Context) error {
	cfg := app.config

	if cfg.Events.Driver == config.DriverNATS || cfg.Cache.Driver == config.DriverNATS {
		conn := natsbus.DefaultConnConfig()
		if cfg.Events.NATSURL != "" {
			conn.URL = cfg.Events.NATSURL
		}
		nc, err := natsbus.Connect(conn, app.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		app.nc = nc
		app.readiness["nats"] = func(context.Context) error {
			if status := nc.Status(); status != nats.CONNECTED {
				return fmt.Errorf("nats connection is %s", status)
			}
			return nil
		}
	}

	switch cfg.Scheduler.Driver {
	case config.DriverRiver:
		pool, err := setupJobPool(ctx, cfg.Database, app.logger)
		if err != nil {
			return err
		}
		app.pool = pool
		app.readiness["scheduler"] = pool.Ping

		backend, err := riverqueue.New(pool, riverqueue.Config{
			Workers:     cfg.Scheduler.QueueWorkers,
			MaxAttempts: cfg.Scheduler.JobMaxAttempts,
		}, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create river scheduler: %w", err)
		}
		app.backend = backend
	default:
		memCfg := scheduler.DefaultMemoryQueueConfig()
		memCfg.Workers = cfg.Scheduler.QueueWorkers
		memCfg.MaxAttempts = cfg.Scheduler.JobMaxAttempts
		app.backend = scheduler.NewMemoryQueue(memCfg, app.logger)
	}

	switch cfg.Events.Driver {
	case config.DriverNATS:
		busCfg := natsbus.DefaultConfig()
		busCfg.Conn = app.nc
		busCfg.Stream = cfg.Events.Stream
		busCfg.DeadLetterPrefix = cfg.Events.DeadLetterPrefix
		bus, err := natsbus.New(ctx, busCfg, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create event bus: %w", err)
		}
		app.bus = bus
	default:
		app.bus = events.NewMemoryBus(events.MemoryBusConfig{
			DeadLetterPrefix: cfg.Events.DeadLetterPrefix,
		}, app.logger)
	}

	return nil
}

// setupServices builds the stores, the reminder worker and the use cases on
// top of the connected infrastructure.
func (app *application) setupServices(ctx context.Context) error {
	cfg := app.config

	readCache, err := app.setupCache(ctx)
	if err != nil {
		return err
	}
	guard := cache.NewGuard(readCache, app.logger)

	taskStore := postgres.NewPostgresTaskStore(app.db, app.logger)
	notificationStore := postgres.NewPostgresNotificationStore(app.db, app.logger)

	app.repo = task.NewRepository(taskStore, task.RepositoryConfig{MaxAttempts: cfg.Task.MaxAttempts}, app.logger)

	// The worker must be registered before the backend starts.
	task.NewReminderWorker(app.repo, app.bus, guard, app.logger).Register(app.backend)

	app.maintainer = task.NewMaintainer(app.repo, app.backend, guard, task.MaintainerConfig{
		LeaseEnabled:       cfg.Lease.Enabled,
		LeaseTimeout:       cfg.Lease.Timeout,
		LeaseCheckInterval: cfg.Lease.CheckInterval,
		ReconcileEnabled:   cfg.Reconcile.Enabled,
		ReconcileInterval:  cfg.Reconcile.Interval,
		RetryDelay:         cfg.Reconcile.RetryDelay,
		BatchSize:          cfg.Reconcile.BatchSize,
	}, app.logger)

	app.taskFacade, err = service.NewTaskFacade(
		app.repo,
		app.backend,
		app.bus,
		guard,
		service.TaskFacadeConfig{CacheTTL: cfg.Cache.TTL},
		app.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create task facade: %w", err)
	}

	notificationService, err := service.NewNotificationService(notificationStore, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create notification service: %w", err)
	}
	app.notificationFacade, err = service.NewNotificationFacade(notificationService, app.bus, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create notification facade: %w", err)
	}

	return nil
}

// setupCache returns the read cache selected by the configuration.
func (app *application) setupCache(ctx context.Context) (cache.Cache, error) {
	cfg := app.config.Cache

	switch cfg.Driver {
	case config.DriverMemory:
		return cache.NewMemory(), nil
	case config.DriverNATS:
		kvCfg := natskv.DefaultConfig()
		kvCfg.Conn = app.nc
		kvCfg.Bucket = cfg.Bucket
		kvCfg.TTL = cfg.TTL
		kv, err := natskv.New(ctx, kvCfg, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create read cache: %w", err)
		}
		return kv, nil
	default:
		return cache.Nop{}, nil
	}
}

// start runs the background parts: the scheduler backend delivering due
// reminders, the task-arrived subscription and the maintenance sweeps.
func (app *application) start(ctx context.Context) error {
	if err := app.backend.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	app.started = true
	if err := app.notificationFacade.Start(ctx); err != nil {
		return fmt.Errorf("failed to start notification facade: %w", err)
	}
	app.maintainer.Start(ctx)
	return nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	if err := app.start(ctx); err != nil {
		app.cleanup()
		return err
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup stops background work and closes connections in reverse order of
// their creation. It is safe to call on a partially built application.
func (app *application) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout())
	defer cancel()

	var errs []error
	if app.maintainer != nil {
		app.maintainer.Stop()
	}
	if app.backend != nil && app.started {
		errs = append(errs, app.backend.Stop(ctx))
	}
	if app.bus != nil {
		errs = append(errs, app.bus.Close())
	}
	if app.nc != nil {
		errs = append(errs, app.nc.Drain())
	}
	if app.pool != nil {
		app.pool.Close()
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}

	if err := errors.Join(errs...); err != nil {
		app.logger.Error("error during shutdown", slog.String("error", redact.Error(err)))
	}
	app.logger.Info("application shutdown completed")
}

func (app *application) shutdownTimeout() time.Duration {
	if app.config.Server.ShutdownTimeout > 0 {
		return app.config.Server.ShutdownTimeout
	}
	return defaultShutdownTimeout
}
