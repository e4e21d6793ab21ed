// Package run persists pipeline-run audit records. A record is written
// at run start and finalized exactly once at run end.
package run

import (
	"context"
	"fmt"

	"github.com/phapluat-cloud/lexdex/internal/domain"
)

const keyPrefix = "lexdex:run:"

// store is the consumer interface for run records (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Repo implements the run store contract of the pipeline.
type Repo struct {
	store store
}

// New creates a run repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Create writes the initial running record.
func (r *Repo) Create(ctx context.Context, run domain.PipelineRun) error {
	fields, err := runToHash(run)
	if err != nil {
		return err
	}
	if err := r.store.HSet(ctx, keyPrefix+run.ID, fields); err != nil {
		return fmt.Errorf("hset run %s: %w", run.ID, err)
	}
	return nil
}

// Finalize overwrites the record with its terminal state.
func (r *Repo) Finalize(ctx context.Context, run domain.PipelineRun) error {
	return r.Create(ctx, run)
}

// Get retrieves a run record by id.
func (r *Repo) Get(ctx context.Context, id string) (domain.PipelineRun, error) {
	m, err := r.store.HGetAll(ctx, keyPrefix+id)
	if err != nil {
		return domain.PipelineRun{}, fmt.Errorf("hgetall run %s: %w", id, err)
	}
	if len(m) == 0 {
		return domain.PipelineRun{}, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return runFromHash(m)
}
