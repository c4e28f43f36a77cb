package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/learningops/lmsync/internal/models"
)

// SyncStateRepository tracks the last successful sync time per pipeline.
type SyncStateRepository struct {
	db *sql.DB
}

// NewSyncStateRepository creates a PostgreSQL-backed sync state repository.
func NewSyncStateRepository(db *sql.DB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

// Get returns the pipeline's last successful sync time, or nil if it has
// never synced.
func (r *SyncStateRepository) Get(ctx context.Context, pipeline string) (*time.Time, error) {
	var last time.Time
	err := r.db.QueryRowContext(ctx,
		"SELECT last_sync_at FROM sync_state WHERE pipeline = $1", pipeline,
	).Scan(&last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	return &last, nil
}

// Set advances the pipeline's last successful sync time.
func (r *SyncStateRepository) Set(ctx context.Context, pipeline string, t time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (pipeline, last_sync_at)
		VALUES ($1, $2)
		ON CONFLICT (pipeline) DO UPDATE SET last_sync_at = EXCLUDED.last_sync_at
	`, pipeline, t)
	if err != nil {
		return fmt.Errorf("set sync state: %w", err)
	}
	return nil
}

// List returns all pipelines' sync state.
func (r *SyncStateRepository) List(ctx context.Context) ([]models.SyncState, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT pipeline, last_sync_at FROM sync_state ORDER BY pipeline")
	if err != nil {
		return nil, fmt.Errorf("list sync state: %w", err)
	}
	defer rows.Close()

	var states []models.SyncState
	for rows.Next() {
		var s models.SyncState
		if err := rows.Scan(&s.Pipeline, &s.LastSyncAt); err != nil {
			return nil, fmt.Errorf("scan sync state: %w", err)
		}
		states = append(states, s)
	}

	return states, rows.Err()
}
