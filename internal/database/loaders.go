package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/learningops/lmsync/internal/etl"
	"github.com/learningops/lmsync/internal/models"
)

// Loaders perform upserts keyed by each record's natural identifier, so
// re-syncing an unchanged span writes the same rows instead of duplicating
// them. Every statement runs on the job's transaction.

const upsertUserSQL = `
	INSERT INTO lms_users (user_id, name, email, department, manager_id, status, last_modified, synced_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	ON CONFLICT (user_id) DO UPDATE SET
		name = EXCLUDED.name,
		email = EXCLUDED.email,
		department = EXCLUDED.department,
		manager_id = EXCLUDED.manager_id,
		status = EXCLUDED.status,
		last_modified = EXCLUDED.last_modified,
		synced_at = NOW()
`

const upsertCompletionSQL = `
	INSERT INTO lms_completions (user_id, item_id, completed_at, status, score, hours, synced_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW())
	ON CONFLICT (user_id, item_id, completed_at) DO UPDATE SET
		status = EXCLUDED.status,
		score = EXCLUDED.score,
		hours = EXCLUDED.hours,
		synced_at = NOW()
`

const upsertItemSQL = `
	INSERT INTO lms_items (item_id, title, item_type, duration_hours, synced_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (item_id) DO UPDATE SET
		title = EXCLUDED.title,
		item_type = EXCLUDED.item_type,
		duration_hours = EXCLUDED.duration_hours,
		synced_at = NOW()
`

// UserLoader upserts canonical user records.
type UserLoader struct{}

// NewUserLoader creates a user loader.
func NewUserLoader() *UserLoader { return &UserLoader{} }

// Load writes the batch inside the run's transaction.
func (l *UserLoader) Load(ctx context.Context, tx etl.Tx, records []models.Canonical) (int, error) {
	sqlTx, err := unwrap(tx)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, rec := range records {
		user, ok := rec.(models.User)
		if !ok {
			return loaded, fmt.Errorf("unexpected record kind %q in user batch", rec.Kind())
		}
		if err := upsertUser(ctx, sqlTx, user); err != nil {
			return loaded, err
		}
		loaded++
	}

	return loaded, nil
}

// CompletionLoader upserts the completions pipeline's mixed batch of
// completions and the item details resolved alongside them.
type CompletionLoader struct{}

// NewCompletionLoader creates a completion loader.
func NewCompletionLoader() *CompletionLoader { return &CompletionLoader{} }

// Load writes the batch inside the run's transaction.
func (l *CompletionLoader) Load(ctx context.Context, tx etl.Tx, records []models.Canonical) (int, error) {
	sqlTx, err := unwrap(tx)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, rec := range records {
		switch r := rec.(type) {
		case models.Completion:
			err = upsertCompletion(ctx, sqlTx, r)
		case models.LearningItem:
			err = upsertItem(ctx, sqlTx, r)
		default:
			return loaded, fmt.Errorf("unexpected record kind %q in completion batch", rec.Kind())
		}
		if err != nil {
			return loaded, err
		}
		loaded++
	}

	return loaded, nil
}

// ItemLoader upserts canonical catalog items.
type ItemLoader struct{}

// NewItemLoader creates an item loader.
func NewItemLoader() *ItemLoader { return &ItemLoader{} }

// Load writes the batch inside the run's transaction.
func (l *ItemLoader) Load(ctx context.Context, tx etl.Tx, records []models.Canonical) (int, error) {
	sqlTx, err := unwrap(tx)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, rec := range records {
		item, ok := rec.(models.LearningItem)
		if !ok {
			return loaded, fmt.Errorf("unexpected record kind %q in item batch", rec.Kind())
		}
		if err := upsertItem(ctx, sqlTx, item); err != nil {
			return loaded, err
		}
		loaded++
	}

	return loaded, nil
}

func upsertUser(ctx context.Context, tx *sql.Tx, user models.User) error {
	lastModified := sql.NullTime{Time: user.LastModified, Valid: !user.LastModified.IsZero()}

	_, err := tx.ExecContext(ctx, upsertUserSQL,
		user.ID,
		user.Name,
		user.Email,
		user.Department,
		user.ManagerID,
		user.Status,
		lastModified,
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", user.ID, err)
	}
	return nil
}

func upsertCompletion(ctx context.Context, tx *sql.Tx, completion models.Completion) error {
	_, err := tx.ExecContext(ctx, upsertCompletionSQL,
		completion.UserID,
		completion.ItemID,
		completion.CompletedAt,
		completion.Status,
		completion.Score,
		completion.Hours,
	)
	if err != nil {
		return fmt.Errorf("upsert completion %s: %w", completion.Key(), err)
	}
	return nil
}

func upsertItem(ctx context.Context, tx *sql.Tx, item models.LearningItem) error {
	_, err := tx.ExecContext(ctx, upsertItemSQL,
		item.ID,
		item.Title,
		item.Type,
		item.DurationHours,
	)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return nil
}
