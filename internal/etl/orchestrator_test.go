package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/learningops/lmsync/internal/config"
	"github.com/learningops/lmsync/internal/models"
)

type fakeTx struct {
	commits   int
	rollbacks int
}

func (t *fakeTx) Commit() error   { t.commits++; return nil }
func (t *fakeTx) Rollback() error { t.rollbacks++; return nil }

type fakeStore struct {
	tx       *fakeTx
	beginErr error
}

func (s *fakeStore) BeginTx(ctx context.Context) (Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.tx = &fakeTx{}
	return s.tx, nil
}

type fakeJobRuns struct {
	mu     sync.Mutex
	stores int
	last   models.JobRun
}

func (r *fakeJobRuns) Store(ctx context.Context, run models.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores++
	r.last = run
	return nil
}

type fakeSyncState struct {
	last *time.Time
	sets []time.Time
}

func (s *fakeSyncState) Get(ctx context.Context, pipeline string) (*time.Time, error) {
	return s.last, nil
}

func (s *fakeSyncState) Set(ctx context.Context, pipeline string, t time.Time) error {
	s.sets = append(s.sets, t)
	return nil
}

type fakeJobMetrics struct {
	jobs   []string
	stages map[string]int
}

func (m *fakeJobMetrics) RecordJob(pipeline, status string, duration time.Duration) {
	m.jobs = append(m.jobs, status)
}

func (m *fakeJobMetrics) RecordStage(pipeline, stage string, count int) {
	if m.stages == nil {
		m.stages = map[string]int{}
	}
	m.stages[stage] = count
}

type fakeJobAlerts struct {
	failures int
	resets   int
}

func (a *fakeJobAlerts) ETLFailure(pipeline, msg string) { a.failures++ }
func (a *fakeJobAlerts) ResetETLFailures()               { a.resets++ }

// usersPipeline extracts n raw user records of which invalid are rejected by
// validation.
func usersPipeline(n, invalid int, loadErr error) Pipeline {
	return Pipeline{
		Name: "users",
		Extract: func(ctx context.Context, since *time.Time, pageSize, maxRecords int) ([]models.Raw, error) {
			raws := make([]models.Raw, 0, n)
			for i := 0; i < n; i++ {
				raw := models.Raw{"userID": fmt.Sprintf("u%d", i)}
				if i < invalid {
					raw["status"] = "unknown"
				} else {
					raw["status"] = "active"
				}
				raws = append(raws, raw)
			}
			return raws, nil
		},
		Transform: func(raw models.Raw) (models.Canonical, error) {
			return &models.User{ID: raw.String("userID"), Status: raw.String("status")}, nil
		},
		Validators: []Validator{
			{
				Name: "known_status",
				Check: func(rec models.Canonical) (bool, string) {
					u := rec.(*models.User)
					return u.Status == models.UserStatusActive || u.Status == "inactive", "unknown status"
				},
			},
		},
		Load: func(ctx context.Context, tx Tx, records []models.Canonical) (int, error) {
			if loadErr != nil {
				return 0, loadErr
			}
			return len(records), nil
		},
	}
}

func newTestOrchestrator(p Pipeline) (*Orchestrator, *fakeStore, *fakeJobRuns, *fakeSyncState, *fakeJobMetrics, *fakeJobAlerts) {
	store := &fakeStore{}
	jobRuns := &fakeJobRuns{}
	syncState := &fakeSyncState{}
	metrics := &fakeJobMetrics{}
	alerts := &fakeJobAlerts{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	o := NewOrchestrator([]Pipeline{p}, store, jobRuns, syncState, metrics, alerts, logger,
		config.SyncConfig{PageSize: 100})

	return o, store, jobRuns, syncState, metrics, alerts
}

func TestRunPartialValidationFailuresStillLoad(t *testing.T) {
	o, store, jobRuns, syncState, metrics, alerts := newTestOrchestrator(usersPipeline(50, 5, nil))

	run, err := o.Run(context.Background(), "users", false, 0)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if run.Status != models.JobStatusCompleted {
		t.Errorf("expected completed, got %s", run.Status)
	}
	if run.RecordsExtracted != 50 {
		t.Errorf("expected 50 extracted, got %d", run.RecordsExtracted)
	}
	if run.ValidationErrors != 5 {
		t.Errorf("expected 5 validation errors, got %d", run.ValidationErrors)
	}
	if run.RecordsLoaded != 45 {
		t.Errorf("expected 45 loaded, got %d", run.RecordsLoaded)
	}
	if run.FinishedAt == nil {
		t.Error("expected FinishedAt to be set")
	}

	if store.tx == nil || store.tx.commits != 1 || store.tx.rollbacks != 0 {
		t.Errorf("expected exactly one commit, got %+v", store.tx)
	}
	if jobRuns.stores != 1 {
		t.Errorf("expected run persisted exactly once, got %d", jobRuns.stores)
	}
	if len(syncState.sets) != 1 || !syncState.sets[0].Equal(run.StartedAt) {
		t.Errorf("expected cursor advanced to run start, got %v", syncState.sets)
	}
	if metrics.stages["loading"] != 45 {
		t.Errorf("expected loading stage count 45, got %d", metrics.stages["loading"])
	}
	if alerts.resets != 1 || alerts.failures != 0 {
		t.Errorf("expected failure streak reset, got resets=%d failures=%d", alerts.resets, alerts.failures)
	}
}

func TestRunLoadErrorRollsBack(t *testing.T) {
	loadErr := errors.New("constraint violation")
	o, store, jobRuns, _, _, alerts := newTestOrchestrator(usersPipeline(10, 0, loadErr))

	run, err := o.Run(context.Background(), "users", false, 0)

	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoadError, got %T: %v", err, err)
	}
	if run.Status != models.JobStatusFailed {
		t.Errorf("expected failed, got %s", run.Status)
	}
	if run.RecordsLoaded != 0 {
		t.Errorf("expected 0 loaded, got %d", run.RecordsLoaded)
	}
	if store.tx == nil || store.tx.rollbacks != 1 || store.tx.commits != 0 {
		t.Errorf("expected rollback without commit, got %+v", store.tx)
	}
	if jobRuns.stores != 1 {
		t.Errorf("expected run persisted exactly once, got %d", jobRuns.stores)
	}
	if alerts.failures != 1 || alerts.resets != 0 {
		t.Errorf("expected one failure event, got failures=%d resets=%d", alerts.failures, alerts.resets)
	}
}

func TestRunTransformErrorIsFatal(t *testing.T) {
	p := usersPipeline(10, 0, nil)
	p.Transform = func(raw models.Raw) (models.Canonical, error) {
		return nil, &TransformError{Field: "userID", Msg: "missing identifier"}
	}
	o, _, jobRuns, syncState, _, alerts := newTestOrchestrator(p)

	run, err := o.Run(context.Background(), "users", false, 0)

	var te *TransformError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransformError, got %T: %v", err, err)
	}
	if run.Status != models.JobStatusFailed {
		t.Errorf("expected failed, got %s", run.Status)
	}
	if len(syncState.sets) != 0 {
		t.Error("cursor must not advance on failure")
	}
	if jobRuns.stores != 1 {
		t.Errorf("expected run persisted exactly once, got %d", jobRuns.stores)
	}
	if alerts.failures != 1 {
		t.Errorf("expected one failure event, got %d", alerts.failures)
	}
}

func TestRunUnknownPipeline(t *testing.T) {
	o, _, jobRuns, _, _, _ := newTestOrchestrator(usersPipeline(1, 0, nil))

	run, err := o.Run(context.Background(), "ghosts", false, 0)
	if !errors.Is(err, ErrNoSuchPipeline) {
		t.Fatalf("expected ErrNoSuchPipeline, got %v", err)
	}
	if run != nil {
		t.Errorf("expected nil run, got %+v", run)
	}
	if jobRuns.stores != 0 {
		t.Errorf("expected no persisted run, got %d", jobRuns.stores)
	}
}

func TestRunCancelledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := usersPipeline(10, 0, nil)
	p.Extract = func(ctx context.Context, since *time.Time, pageSize, maxRecords int) ([]models.Raw, error) {
		cancel() // run observes this at the next stage boundary
		return []models.Raw{{"userID": "u1", "status": "active"}}, nil
	}
	o, _, jobRuns, _, _, alerts := newTestOrchestrator(p)

	run, err := o.Run(ctx, "users", false, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if run.Status != models.JobStatusCancelled {
		t.Errorf("expected cancelled, got %s", run.Status)
	}
	if alerts.failures != 0 {
		t.Errorf("cancellation must not count toward the failure streak, got %d", alerts.failures)
	}
	if jobRuns.stores != 1 {
		t.Errorf("expected run persisted exactly once, got %d", jobRuns.stores)
	}
}

func TestRunCursorResolution(t *testing.T) {
	var gotSince *time.Time

	p := usersPipeline(0, 0, nil)
	p.Extract = func(ctx context.Context, since *time.Time, pageSize, maxRecords int) ([]models.Raw, error) {
		gotSince = since
		return nil, nil
	}
	o, _, _, syncState, _, _ := newTestOrchestrator(p)

	// Full sync ignores the stored cursor.
	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	syncState.last = &last
	if _, err := o.Run(context.Background(), "users", false, 0); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if gotSince != nil {
		t.Errorf("full sync should pass nil cursor, got %v", gotSince)
	}

	// Incremental sync uses the stored cursor.
	if _, err := o.Run(context.Background(), "users", true, 0); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if gotSince == nil || !gotSince.Equal(last) {
		t.Errorf("incremental sync should use stored cursor %v, got %v", last, gotSince)
	}

	// Explicit days-back overrides the stored cursor.
	if _, err := o.Run(context.Background(), "users", true, 7); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if gotSince == nil {
		t.Fatal("expected a days-back cursor")
	}
	want := time.Now().AddDate(0, 0, -7)
	if diff := gotSince.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expected cursor near %v, got %v", want, gotSince)
	}
}

func TestRunBeginTxError(t *testing.T) {
	o, store, _, _, _, _ := newTestOrchestrator(usersPipeline(1, 0, nil))
	store.beginErr = errors.New("connection refused")

	run, err := o.Run(context.Background(), "users", false, 0)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if run.Status != models.JobStatusFailed {
		t.Errorf("expected failed, got %s", run.Status)
	}
}
