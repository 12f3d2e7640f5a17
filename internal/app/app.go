// Package app provides the main application lifecycle management for the
// listforge service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"github.com/listforge/listforge/internal/api"
	"github.com/listforge/listforge/internal/automation"
	"github.com/listforge/listforge/internal/cluster"
	"github.com/listforge/listforge/internal/config"
	"github.com/listforge/listforge/internal/database"
	"github.com/listforge/listforge/internal/draftgen"
	"github.com/listforge/listforge/internal/logger"
	"github.com/listforge/listforge/internal/publish"
	"github.com/listforge/listforge/internal/ratelimit"
	"github.com/listforge/listforge/internal/redis"
	"github.com/listforge/listforge/internal/vault"
	"github.com/listforge/listforge/internal/worker"
)

// DefaultShutdownTimeout is the default timeout for graceful shutdown
const DefaultShutdownTimeout = 30 * time.Second

// App represents the listforge application with all its dependencies
type App struct {
	config       *config.Config
	logger       logger.Logger
	db           *sqlx.DB
	redisClient  *goredis.Client
	batchWorker  *worker.BatchWorker
	relistWorker *worker.RelistWorker
	httpServer   *http.Server
	version      string
}

// Options contains configuration for creating a new App
type Options struct {
	ConfigPath string
	Version    string
}

// New creates a new App instance with all dependencies initialized
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.New(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "listforge"),
		logger.String("version", opts.Version),
	)

	db, err := database.NewPostgresConnection(cfg.Postgres)
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// Persistence
	batchRepo := database.NewBatchRepository(db)
	draftRepo := database.NewDraftRepository(db)
	publishRepo := database.NewPublishRepository(db)
	sessionRepo := database.NewSessionRepository(db)

	// Credential vault
	credVault, err := vault.New(cfg.Vault, sessionRepo, appLogger)
	if err != nil {
		db.Close()
		_ = redisClient.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("open credential vault: %w", err)
	}

	// Pipeline stages
	clusterer := cluster.New(cluster.NewHTTPPhotoSource(), appLogger)
	generator, err := draftgen.New(cfg.OpenAI, appLogger)
	if err != nil {
		db.Close()
		_ = redisClient.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("create draft generator: %w", err)
	}

	// Publish protocol
	pacer := ratelimit.New(cfg.Limits, appLogger)
	marketplace := automation.NewMarketplaceClient(cfg.Marketplace, appLogger)
	tokens := publish.NewTokenStore(redisClient, cfg.Limits.TokenTTL, appLogger)
	publisher := publish.NewService(draftRepo, publishRepo, tokens, credVault, marketplace, pacer, appLogger)

	// Background workers
	batchWorker := worker.NewBatchWorker(batchRepo, draftRepo, clusterer, generator,
		worker.BatchWorkerConfig{
			PollInterval: cfg.Workers.BatchPollInterval,
			Parallelism:  cfg.Workers.BatchParallelism,
			StaleJobAge:  cfg.Workers.StaleJobAge,
		}, appLogger)

	var relistWorker *worker.RelistWorker
	if cfg.Workers.RelistSchedule != "" {
		relistWorker = worker.NewRelistWorker(draftRepo, publishRepo, credVault, marketplace, pacer,
			worker.RelistWorkerConfig{
				Schedule:    cfg.Workers.RelistSchedule,
				RelistAfter: cfg.Workers.RelistAfter,
			}, appLogger)
	}

	// HTTP API
	statsService := api.NewStatsService(batchRepo, draftRepo, publishRepo, pacer, appLogger)
	router := api.NewRouter(api.Deps{
		Batches:     batchRepo,
		Drafts:      draftRepo,
		Publisher:   publisher,
		PublishLog:  publishRepo,
		Vault:       credVault,
		Checker:     marketplace,
		Stats:       statsService,
		DB:          db,
		RedisClient: redisClient,
	}, cfg, appLogger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &App{
		config:       cfg,
		logger:       appLogger,
		db:           db,
		redisClient:  redisClient,
		batchWorker:  batchWorker,
		relistWorker: relistWorker,
		httpServer:   httpServer,
		version:      opts.Version,
	}, nil
}

// Run starts the workers and the HTTP server and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()

	a.batchWorker.Start(workerCtx)
	if a.relistWorker != nil {
		if err := a.relistWorker.Start(workerCtx); err != nil {
			a.batchWorker.Stop()
			return fmt.Errorf("start relist worker: %w", err)
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting",
			logger.String("address", a.config.Server.Address))
		serverErr <- a.httpServer.ListenAndServe()
	}()

	return a.waitForShutdown(ctx, workerCancel, serverErr)
}

// waitForShutdown handles graceful shutdown
func (a *App) waitForShutdown(ctx context.Context, workerCancel context.CancelFunc, serverErr chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var shutdownErr error

	select {
	case sig := <-sigChan:
		a.logger.Info("shutting down gracefully",
			logger.String("signal", sig.String()))

	case <-ctx.Done():
		a.logger.Info("shutting down, context cancelled")

	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", logger.Error(err))
			shutdownErr = err
		}
	}

	workerCancel()
	a.stopWorkers()
	a.shutdownHTTPServer()

	a.logger.Info("service stopped")
	return shutdownErr
}

func (a *App) stopWorkers() {
	a.batchWorker.Stop()
	if a.relistWorker != nil {
		a.relistWorker.Stop()
	}
}

// shutdownHTTPServer gracefully shuts down the HTTP server
func (a *App) shutdownHTTPServer() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", logger.Error(err))
	} else {
		a.logger.Info("HTTP server stopped")
	}
}

// Close cleans up resources
func (a *App) Close() error {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger
func (a *App) Logger() logger.Logger {
	return a.logger
}
