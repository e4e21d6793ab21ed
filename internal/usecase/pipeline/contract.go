package pipeline

import (
	"context"

	"github.com/phapluat-cloud/lexdex/internal/domain"
)

// CategoryStore reads categories and refreshes their cached counts.
type CategoryStore interface {
	GetByName(ctx context.Context, name string) (domain.Category, error)
	UpdateCounts(ctx context.Context, id string, documents, articles int) error
}

// DocumentStore persists documents, article chunks, and the crawl registry.
type DocumentStore interface {
	GetByFingerprint(ctx context.Context, hash string) (domain.Document, error)
	Upsert(ctx context.Context, doc domain.Document) (id string, created bool, err error)
	UpsertChunks(ctx context.Context, chunks []domain.Article) (int, error)
	CountByCategory(ctx context.Context, categoryID string) (documents, articles int, err error)
	ListRegistry(ctx context.Context, category string) ([]domain.RegistryEntry, error)
	TouchRegistry(ctx context.Context, category, url, hash string) error
}

// RunStore persists pipeline-run audit records.
type RunStore interface {
	Create(ctx context.Context, run domain.PipelineRun) error
	Finalize(ctx context.Context, run domain.PipelineRun) error
}

// Fetcher retrieves raw document content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// CategoryResolver maps document titles to category IDs.
type CategoryResolver interface {
	CategoryFromTitle(ctx context.Context, title string) (string, error)
}
