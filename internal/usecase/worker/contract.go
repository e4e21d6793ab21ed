package worker

import (
	"context"

	"github.com/phapluat-cloud/lexdex/internal/domain"
	"github.com/phapluat-cloud/lexdex/internal/usecase/pipeline"
)

// Pipeline executes one ingestion run for a category.
type Pipeline interface {
	Run(ctx context.Context, categoryName string, opts pipeline.Options) (domain.PipelineRun, error)
}

// CategoryStore persists the per-category worker status flag.
type CategoryStore interface {
	GetByName(ctx context.Context, name string) (domain.Category, error)
	UpdateWorkerStatus(ctx context.Context, id, status string) error
}
