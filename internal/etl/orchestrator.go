package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/learningops/lmsync/internal/config"
	"github.com/learningops/lmsync/internal/models"
)

// stage names the orchestrator's state machine states. Transitions are
// sequential per run; failed and cancelled are terminal from any stage.
type stage string

const (
	stagePending      stage = "pending"
	stageExtracting   stage = "extracting"
	stageTransforming stage = "transforming"
	stageValidating   stage = "validating"
	stageLoading      stage = "loading"
)

// JobRunRepository persists finished job runs. A run is stored exactly once.
type JobRunRepository interface {
	Store(ctx context.Context, run models.JobRun) error
}

// SyncStateRepository tracks the incremental cursor per pipeline.
type SyncStateRepository interface {
	Get(ctx context.Context, pipeline string) (*time.Time, error)
	Set(ctx context.Context, pipeline string, t time.Time) error
}

// MetricsRecorder receives job-level metrics in stage order.
type MetricsRecorder interface {
	RecordJob(pipeline, status string, duration time.Duration)
	RecordStage(pipeline, stage string, count int)
}

// AlertSink observes job outcomes for consecutive-failure alerting.
type AlertSink interface {
	ETLFailure(pipeline, msg string)
	ResetETLFailures()
}

// Orchestrator executes named pipelines as single-threaded sequential jobs.
// Concurrent runs of different pipelines are safe: the orchestrator holds no
// per-run state, and each run owns its transaction exclusively.
type Orchestrator struct {
	pipelines map[string]Pipeline
	store     Store
	jobRuns   JobRunRepository
	syncState SyncStateRepository
	metrics   MetricsRecorder
	alerts    AlertSink
	logger    *slog.Logger
	cfg       config.SyncConfig
	now       func() time.Time
}

// NewOrchestrator wires the pipelines against their collaborators. The
// pipeline list is fixed at construction.
func NewOrchestrator(
	pipelines []Pipeline,
	store Store,
	jobRuns JobRunRepository,
	syncState SyncStateRepository,
	metrics MetricsRecorder,
	alerts AlertSink,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *Orchestrator {
	byName := make(map[string]Pipeline, len(pipelines))
	for _, p := range pipelines {
		byName[p.Name] = p
	}

	return &Orchestrator{
		pipelines: byName,
		store:     store,
		jobRuns:   jobRuns,
		syncState: syncState,
		metrics:   metrics,
		alerts:    alerts,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Pipelines returns the names of all configured pipelines.
func (o *Orchestrator) Pipelines() []string {
	names := make([]string, 0, len(o.pipelines))
	for name := range o.pipelines {
		names = append(names, name)
	}
	return names
}

// Run executes one job: extract, transform, validate, load. The returned
// JobRun is the metrics summary the trigger boundary contracts on; it is also
// persisted exactly once, whatever the outcome. The error mirrors the run's
// failure, nil on success.
func (o *Orchestrator) Run(ctx context.Context, name string, incremental bool, daysBack int) (*models.JobRun, error) {
	pipeline, ok := o.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchPipeline, name)
	}

	run := &models.JobRun{
		ID:        uuid.New().String(),
		Pipeline:  name,
		Status:    models.JobStatusStarted,
		StartedAt: o.now(),
	}

	o.logger.Info("job started",
		"job_id", run.ID,
		"pipeline", name,
		"incremental", incremental,
		"days_back", daysBack,
	)

	start := time.Now()
	var tx Tx

	// fail rolls back, persists the terminal run and checks the failure
	// streak. Cancellation is terminal but not alertable.
	fail := func(err error) (*models.JobRun, error) {
		if tx != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				o.logger.Error("rollback failed", "job_id", run.ID, "error", rbErr)
			}
			tx = nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			run.Status = models.JobStatusCancelled
		} else {
			run.Status = models.JobStatusFailed
		}
		run.ErrorMsg = err.Error()
		o.finish(run, start)

		if run.Status == models.JobStatusFailed {
			o.alerts.ETLFailure(name, err.Error())
		}

		return run, err
	}

	// advance is the stage-boundary cancellation check.
	advance := func(s stage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.logger.Debug("stage transition", "job_id", run.ID, "stage", string(s))
		return nil
	}

	since, err := o.cursor(ctx, name, incremental, daysBack)
	if err != nil {
		return fail(fmt.Errorf("resolve sync cursor: %w", err))
	}

	if err := advance(stageExtracting); err != nil {
		return fail(err)
	}
	raws, err := pipeline.Extract(ctx, since, o.cfg.PageSize, o.cfg.MaxRecords)
	if err != nil {
		return fail(fmt.Errorf("extract: %w", err))
	}
	run.RecordsExtracted = len(raws)
	o.metrics.RecordStage(name, string(stageExtracting), len(raws))

	if err := advance(stageTransforming); err != nil {
		return fail(err)
	}
	canon := make([]models.Canonical, 0, len(raws))
	for _, raw := range raws {
		rec, terr := pipeline.Transform(raw)
		if terr != nil {
			return fail(terr)
		}
		canon = append(canon, rec)
	}
	run.RecordsTransformed = len(canon)
	o.metrics.RecordStage(name, string(stageTransforming), len(canon))

	if err := advance(stageValidating); err != nil {
		return fail(err)
	}
	valid, rejected := Partition(canon, pipeline.Validators)
	run.ValidationErrors = len(rejected)
	for _, f := range rejected {
		o.logger.Warn("record rejected",
			"job_id", run.ID,
			"record_key", f.RecordKey,
			"reason", f.Reason,
		)
	}
	o.metrics.RecordStage(name, string(stageValidating), len(valid))

	if err := advance(stageLoading); err != nil {
		return fail(err)
	}
	tx, err = o.store.BeginTx(ctx)
	if err != nil {
		return fail(fmt.Errorf("begin transaction: %w", err))
	}
	loaded, err := pipeline.Load(ctx, tx, valid)
	if err != nil {
		return fail(&LoadError{Err: err})
	}
	run.RecordsLoaded = loaded
	o.metrics.RecordStage(name, string(stageLoading), loaded)

	if err := tx.Commit(); err != nil {
		tx = nil
		return fail(fmt.Errorf("commit: %w", err))
	}
	tx = nil

	run.Status = models.JobStatusCompleted
	o.finish(run, start)

	// Advance the cursor to the run's own start so records modified during
	// the run are picked up next time. A failed write only means re-pulling
	// an already-upserted span.
	if err := o.syncState.Set(ctx, name, run.StartedAt); err != nil {
		o.logger.Error("failed to advance sync cursor", "pipeline", name, "error", err)
	}

	o.alerts.ResetETLFailures()

	return run, nil
}

// cursor resolves the modified-since filter for this run.
func (o *Orchestrator) cursor(ctx context.Context, name string, incremental bool, daysBack int) (*time.Time, error) {
	if !incremental {
		return nil, nil
	}

	if daysBack > 0 {
		since := o.now().AddDate(0, 0, -daysBack)
		return &since, nil
	}

	last, err := o.syncState.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	// No prior sync: full pull.
	return last, nil
}

// finish stamps end time and duration and persists the run. Duration is
// measured end to end regardless of outcome. Persistence uses a detached
// context so a cancelled job still leaves its record.
func (o *Orchestrator) finish(run *models.JobRun, start time.Time) {
	ended := o.now()
	run.FinishedAt = &ended
	elapsed := time.Since(start)
	run.Duration = elapsed.Seconds()

	o.metrics.RecordJob(run.Pipeline, string(run.Status), elapsed)

	storeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.jobRuns.Store(storeCtx, *run); err != nil {
		o.logger.Error("failed to persist job run", "job_id", run.ID, "error", err)
	}

	o.logger.Info("job finished",
		"job_id", run.ID,
		"pipeline", run.Pipeline,
		"status", string(run.Status),
		"extracted", run.RecordsExtracted,
		"loaded", run.RecordsLoaded,
		"validation_errors", run.ValidationErrors,
		"duration", elapsed,
	)
}
