// Command sync runs one pipeline job from the command line and prints its
// metrics summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/learningops/lmsync/internal/alerting"
	"github.com/learningops/lmsync/internal/cloudsql"
	"github.com/learningops/lmsync/internal/config"
	"github.com/learningops/lmsync/internal/database"
	"github.com/learningops/lmsync/internal/etl"
	"github.com/learningops/lmsync/internal/lms"
	"github.com/learningops/lmsync/internal/logging"
	"github.com/learningops/lmsync/internal/metrics"
	"github.com/learningops/lmsync/internal/models"
	syncpipe "github.com/learningops/lmsync/internal/sync"
)

func main() {
	pipeline := flag.String("pipeline", "", "pipeline to run (users, completions, items)")
	incremental := flag.Bool("incremental", true, "sync only records modified since the last successful run")
	daysBack := flag.Int("days-back", 0, "override the incremental cursor to now minus this many days")
	flag.Parse()

	if *pipeline == "" {
		fmt.Fprintln(os.Stderr, "usage: sync -pipeline <name> [-incremental=false] [-days-back N]")
		os.Exit(2)
	}

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

	if cfg.Database.URL == "" {
		dbURL, err := cloudsql.ResolveDatabaseURL()
		if err != nil {
			logger.Error("failed to resolve database url", "error", err)
			os.Exit(1)
		}
		cfg.Database.URL = dbURL
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	recorder, err := metrics.NewRecorder()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	var notifier alerting.Notifier = alerting.NopNotifier{}
	if cfg.Alert.Enabled {
		notifier = alerting.NewSMTPNotifier(cfg.Alert)
	}
	alerts := alerting.NewManager(cfg.Alert, notifier, logger)

	tokens := lms.NewTokenManager(cfg.LMS, logger)
	client := lms.NewClient(cfg.LMS, cfg.RateLimit, cfg.Retry, tokens, recorder, alerts, logger)

	pipelines := syncpipe.BuildPipelines(client, syncpipe.Loaders{
		Users:       database.NewUserLoader().Load,
		Completions: database.NewCompletionLoader().Load,
		Items:       database.NewItemLoader().Load,
	}, cfg.Sync, logger)

	orchestrator := etl.NewOrchestrator(
		pipelines,
		database.NewSQLStore(db),
		database.NewJobRunRepository(db),
		database.NewSyncStateRepository(db),
		recorder,
		alerts,
		logger,
		cfg.Sync,
	)

	run, err := orchestrator.Run(ctx, *pipeline, *incremental, *daysBack)
	if run != nil {
		out, _ := json.MarshalIndent(run, "", "  ")
		fmt.Println(string(out))
	}
	if err != nil || run == nil || run.Status != models.JobStatusCompleted {
		os.Exit(1)
	}
}
