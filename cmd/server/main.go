package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/learningops/lmsync/internal/alerting"
	"github.com/learningops/lmsync/internal/api"
	"github.com/learningops/lmsync/internal/cloudsql"
	"github.com/learningops/lmsync/internal/config"
	"github.com/learningops/lmsync/internal/database"
	"github.com/learningops/lmsync/internal/etl"
	"github.com/learningops/lmsync/internal/lms"
	"github.com/learningops/lmsync/internal/logging"
	"github.com/learningops/lmsync/internal/metrics"
	"github.com/learningops/lmsync/internal/scheduler"
	"github.com/learningops/lmsync/internal/server"
	syncpipe "github.com/learningops/lmsync/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting lmsync")

	// On Cloud Run the connection string comes from the mounted Cloud SQL
	// socket rather than DATABASE_URL.
	if cfg.Database.URL == "" {
		dbURL, err := cloudsql.ResolveDatabaseURL()
		if err != nil {
			logger.Error("failed to resolve database url", "error", err)
			os.Exit(1)
		}
		cfg.Database.URL = dbURL
	}
	logger.Info("database target", "url", cloudsql.RedactURL(cfg.Database.URL))

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("connecting to database")
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.RunMigrations(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Repositories and store boundary
	jobRunRepo := database.NewJobRunRepository(db)
	syncStateRepo := database.NewSyncStateRepository(db)
	store := database.NewSQLStore(db)

	// Observability and alerting
	recorder, err := metrics.NewRecorder()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	var notifier alerting.Notifier = alerting.NopNotifier{}
	if cfg.Alert.Enabled {
		notifier = alerting.NewSMTPNotifier(cfg.Alert)
		logger.Info("smtp alerting enabled", "recipients", len(cfg.Alert.To))
	}
	alerts := alerting.NewManager(cfg.Alert, notifier, logger)

	// API client against the LMS
	tokens := lms.NewTokenManager(cfg.LMS, logger)
	client := lms.NewClient(cfg.LMS, cfg.RateLimit, cfg.Retry, tokens, recorder, alerts, logger)

	// Pipelines and orchestrator
	pipelines := syncpipe.BuildPipelines(client, syncpipe.Loaders{
		Users:       database.NewUserLoader().Load,
		Completions: database.NewCompletionLoader().Load,
		Items:       database.NewItemLoader().Load,
	}, cfg.Sync, logger)

	orchestrator := etl.NewOrchestrator(
		pipelines,
		store,
		jobRunRepo,
		syncStateRepo,
		recorder,
		alerts,
		logger,
		cfg.Sync,
	)

	// Periodic incremental syncs
	sched := scheduler.New(orchestrator, cfg.Sync.Pipelines, cfg.Sync.Interval, logger)
	go sched.Start(ctx)
	defer sched.Stop()

	// Admin API
	authHandler := api.NewAuthHandler(cfg.Auth, logger)
	syncHandler := api.NewSyncHandler(orchestrator, jobRunRepo, syncStateRepo, logger)
	router := api.NewRouter(authHandler, syncHandler, cfg.Auth, recorder.Handler(), db, logger)

	srv := server.New(cfg.Server, logger, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("lmsync stopped")
}
