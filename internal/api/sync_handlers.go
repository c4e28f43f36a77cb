package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/learningops/lmsync/internal/database"
	"github.com/learningops/lmsync/internal/etl"
	"github.com/learningops/lmsync/internal/models"
)

// SyncHandler exposes the job trigger boundary over HTTP: the admin sync
// button POSTs here with the same (pipeline, incremental, daysBack) contract
// the CLI and scheduler use.
type SyncHandler struct {
	orchestrator *etl.Orchestrator
	jobRuns      *database.JobRunRepository
	syncState    *database.SyncStateRepository
	logger       *slog.Logger
}

// NewSyncHandler creates a sync handler.
func NewSyncHandler(
	orchestrator *etl.Orchestrator,
	jobRuns *database.JobRunRepository,
	syncState *database.SyncStateRepository,
	logger *slog.Logger,
) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		jobRuns:      jobRuns,
		syncState:    syncState,
		logger:       logger,
	}
}

// SyncRequest triggers one pipeline run.
type SyncRequest struct {
	Pipeline    string `json:"pipeline"`
	Incremental bool   `json:"incremental"`
	DaysBack    int    `json:"days_back"`
}

// TriggerSync handles POST /api/sync. The job runs synchronously; the
// response carries the JobRun metrics summary whatever the outcome.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := ValidateSyncRequest(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := h.orchestrator.Run(r.Context(), req.Pipeline, req.Incremental, req.DaysBack)
	if run == nil {
		status := http.StatusInternalServerError
		if errors.Is(err, etl.ErrNoSuchPipeline) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	status := http.StatusOK
	if run.Status != models.JobStatusCompleted {
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, run)
}

// ListJobs handles GET /api/jobs?pipeline=&limit=
func (h *SyncHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.jobRuns.ListRecent(r.Context(), r.URL.Query().Get("pipeline"), limit)
	if err != nil {
		h.logger.Error("failed to list job runs", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  runs,
		"count": len(runs),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *SyncHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" {
		http.Error(w, "job id is required", http.StatusBadRequest)
		return
	}

	run, err := h.jobRuns.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get job run", "job_id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// Status handles GET /api/status: configured pipelines and their last
// successful sync times.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	states, err := h.syncState.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list sync state", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pipelines": h.orchestrator.Pipelines(),
		"last_sync": states,
	})
}
