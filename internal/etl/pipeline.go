// Package etl orchestrates extract-transform-validate-load runs against the
// LMS API and the reporting store.
package etl

import (
	"context"
	"time"

	"github.com/learningops/lmsync/internal/models"
)

// Store is the transactional boundary to the reporting store. Schema ownership
// is external; the pipeline only begins transactions and hands them to loaders.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is one job run's transaction. It is never shared across runs.
type Tx interface {
	Commit() error
	Rollback() error
}

// ExtractFunc pulls the full raw batch for a run, paging internally. A nil
// since means a full pull; maxRecords 0 means unlimited.
type ExtractFunc func(ctx context.Context, since *time.Time, pageSize, maxRecords int) ([]models.Raw, error)

// TransformFunc maps one raw record to its canonical form. It must be total
// over optional fields and may only fail on structurally malformed input.
type TransformFunc func(raw models.Raw) (models.Canonical, error)

// Validator checks one canonical record, returning ok or a rejection reason.
type Validator struct {
	Name  string
	Check func(rec models.Canonical) (ok bool, reason string)
}

// LoadFunc upserts the valid batch inside the supplied transaction and
// returns the number of records written.
type LoadFunc func(ctx context.Context, tx Tx, records []models.Canonical) (int, error)

// Pipeline wires the four stages of one named sync job. Pipelines are
// assembled at composition time and never mutated afterwards.
type Pipeline struct {
	Name       string
	Extract    ExtractFunc
	Transform  TransformFunc
	Validators []Validator
	Load       LoadFunc
}

// Partition runs transform output through the validators, first failure wins.
// It is a pure function: identical input yields an identical split, so
// re-running a batch is idempotent.
func Partition(records []models.Canonical, validators []Validator) ([]models.Canonical, []models.ValidationFailure) {
	valid := make([]models.Canonical, 0, len(records))
	var failures []models.ValidationFailure

	for _, rec := range records {
		reason, ok := "", true
		for _, v := range validators {
			if passed, r := v.Check(rec); !passed {
				ok = false
				reason = v.Name + ": " + r
				break
			}
		}
		if ok {
			valid = append(valid, rec)
		} else {
			failures = append(failures, models.ValidationFailure{RecordKey: rec.Key(), Reason: reason})
		}
	}

	return valid, failures
}
