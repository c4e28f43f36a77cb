package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/learningops/lmsync/internal/etl"
)

// SQLStore adapts the PostgreSQL pool to the pipeline's transactional store
// boundary.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open connection pool.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// BeginTx starts one job run's transaction.
func (s *SQLStore) BeginTx(ctx context.Context) (etl.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &SQLTx{tx: tx}, nil
}

// SQLTx wraps *sql.Tx behind the pipeline's Tx interface. Loaders unwrap it
// to execute their upserts on the run's transaction.
type SQLTx struct {
	tx *sql.Tx
}

// Commit commits the run's writes.
func (t *SQLTx) Commit() error { return t.tx.Commit() }

// Rollback discards the run's writes.
func (t *SQLTx) Rollback() error { return t.tx.Rollback() }

// unwrap returns the underlying transaction for loader statements.
func unwrap(tx etl.Tx) (*sql.Tx, error) {
	sqlTx, ok := tx.(*SQLTx)
	if !ok {
		return nil, fmt.Errorf("unexpected transaction type %T", tx)
	}
	return sqlTx.tx, nil
}
