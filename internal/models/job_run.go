package models

import (
	"time"
)

// JobRun captures one execution of a sync pipeline. A run is created when the
// orchestrator starts, mutated only by that orchestrator, and persisted exactly
// once at completion, whether it succeeded or failed.
type JobRun struct {
	ID                 string     `json:"id"`
	Pipeline           string     `json:"pipeline"`
	Status             JobStatus  `json:"status"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	RecordsExtracted   int        `json:"records_extracted"`
	RecordsTransformed int        `json:"records_transformed"`
	RecordsLoaded      int        `json:"records_loaded"`
	ValidationErrors   int        `json:"validation_errors"`
	ErrorMsg           string     `json:"error_msg,omitempty"`
	Duration           float64    `json:"duration_seconds"`
}

// JobStatus is the terminal state of a job run.
type JobStatus string

const (
	JobStatusStarted   JobStatus = "started"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// SyncState tracks the last successful sync timestamp per pipeline, used as
// the incremental-extraction cursor.
type SyncState struct {
	Pipeline   string    `json:"pipeline"`
	LastSyncAt time.Time `json:"last_sync_at"`
}
