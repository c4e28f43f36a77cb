// Package scheduler triggers periodic incremental syncs of every configured
// pipeline.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/learningops/lmsync/internal/etl"
)

// SyncScheduler runs each pipeline on a fixed interval. Pipelines run as
// independent jobs, one goroutine per pipeline; the orchestrator never
// parallelizes stages within a run.
type SyncScheduler struct {
	orchestrator *etl.Orchestrator
	pipelines    []string
	interval     time.Duration
	logger       *slog.Logger
	stopChan     chan struct{}
}

// New creates a scheduler for the named pipelines.
func New(orchestrator *etl.Orchestrator, pipelines []string, interval time.Duration, logger *slog.Logger) *SyncScheduler {
	return &SyncScheduler{
		orchestrator: orchestrator,
		pipelines:    pipelines,
		interval:     interval,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the scheduler loop. An initial sync runs immediately.
func (s *SyncScheduler) Start(ctx context.Context) {
	s.logger.Info("starting sync scheduler",
		"interval", s.interval,
		"pipelines", s.pipelines,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runAll(ctx)

	for {
		select {
		case <-ticker.C:
			s.runAll(ctx)
		case <-s.stopChan:
			s.logger.Info("sync scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("sync scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler.
func (s *SyncScheduler) Stop() {
	close(s.stopChan)
}

// runAll executes one incremental sync per pipeline concurrently and waits
// for all of them. Job failures are logged and left to the alerting
// thresholds; the scheduler itself keeps ticking.
func (s *SyncScheduler) runAll(ctx context.Context) {
	var wg sync.WaitGroup

	for _, pipeline := range s.pipelines {
		wg.Add(1)

		go func(name string) {
			defer wg.Done()

			run, err := s.orchestrator.Run(ctx, name, true, 0)
			if err != nil {
				s.logger.Error("scheduled sync failed", "pipeline", name, "error", err)
				return
			}

			s.logger.Info("scheduled sync completed",
				"pipeline", name,
				"job_id", run.ID,
				"loaded", run.RecordsLoaded,
				"validation_errors", run.ValidationErrors,
			)
		}(pipeline)
	}

	wg.Wait()
}
