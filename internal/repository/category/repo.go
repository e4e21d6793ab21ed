// Package category persists canonical legal-domain categories over the
// hash store. Rows are keyed by normalized name with a secondary
// id→name index so worker-status updates can address by ID.
package category

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/phapluat-cloud/lexdex/internal/domain"
)

const (
	metaPrefix = "lexdex:category:meta:"
	idPrefix   = "lexdex:category:id:"
)

// store is the consumer interface for category rows (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo implements the category store contracts of the resolver,
// pipeline, and worker.
type Repo struct {
	store store
}

// New creates a category repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// GetByName retrieves a category by normalized name.
func (r *Repo) GetByName(ctx context.Context, name string) (domain.Category, error) {
	m, err := r.store.HGetAll(ctx, metaPrefix+name)
	if err != nil {
		return domain.Category{}, fmt.Errorf("hgetall category %s: %w", name, err)
	}
	if len(m) == 0 {
		return domain.Category{}, fmt.Errorf("category %s: %w", name, domain.ErrNotFound)
	}
	return categoryFromHash(m), nil
}

// GetByID retrieves a category through the id index.
func (r *Repo) GetByID(ctx context.Context, id string) (domain.Category, error) {
	name, err := r.nameByID(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}
	return r.GetByName(ctx, name)
}

// Upsert creates or updates a category keyed by normalized name.
// An existing row keeps its identifier, cached counts, and worker
// status; only the descriptive fields are overwritten.
func (r *Repo) Upsert(ctx context.Context, cat domain.Category) (string, error) {
	existing, err := r.store.HGetAll(ctx, metaPrefix+cat.Name)
	if err != nil {
		return "", fmt.Errorf("hgetall category %s: %w", cat.Name, err)
	}

	if id := existing["id"]; id != "" {
		cat.ID = id
	} else if cat.ID == "" {
		cat.ID = uuid.NewString()
	}

	if err := r.store.HSet(ctx, metaPrefix+cat.Name, categoryToHash(cat)); err != nil {
		return "", fmt.Errorf("hset category %s: %w", cat.Name, err)
	}
	if err := r.store.HSet(ctx, idPrefix+cat.ID, map[string]string{"name": cat.Name}); err != nil {
		return "", fmt.Errorf("hset category id index %s: %w", cat.ID, err)
	}
	return cat.ID, nil
}

// ListAll returns every category row.
func (r *Repo) ListAll(ctx context.Context) ([]domain.Category, error) {
	keys, err := r.store.Scan(ctx, metaPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan categories: %w", err)
	}
	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	cats := make([]domain.Category, 0, len(rows))
	for _, m := range rows {
		if len(m) == 0 {
			continue
		}
		cats = append(cats, categoryFromHash(m))
	}
	return cats, nil
}

// UpdateWorkerStatus persists the worker-status flag on a category.
func (r *Repo) UpdateWorkerStatus(ctx context.Context, id, status string) error {
	name, err := r.nameByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.HSet(ctx, metaPrefix+name, map[string]string{"worker_status": status}); err != nil {
		return fmt.Errorf("update worker status for %s: %w", name, err)
	}
	return nil
}

// UpdateCounts refreshes the cached document and article counts.
func (r *Repo) UpdateCounts(ctx context.Context, id string, documents, articles int) error {
	name, err := r.nameByID(ctx, id)
	if err != nil {
		return err
	}
	fields := map[string]string{
		"document_count": itoa(documents),
		"article_count":  itoa(articles),
	}
	if err := r.store.HSet(ctx, metaPrefix+name, fields); err != nil {
		return fmt.Errorf("update counts for %s: %w", name, err)
	}
	return nil
}

func (r *Repo) nameByID(ctx context.Context, id string) (string, error) {
	m, err := r.store.HGetAll(ctx, idPrefix+id)
	if err != nil {
		return "", fmt.Errorf("hgetall category id %s: %w", id, err)
	}
	name := m["name"]
	if name == "" {
		return "", fmt.Errorf("category id %s: %w", id, domain.ErrNotFound)
	}
	return name, nil
}
