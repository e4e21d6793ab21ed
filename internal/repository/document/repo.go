// Package document persists documents, their article chunks, and the
// per-category URL registry used for incremental crawls.
//
// Key layout:
//
//	lexdex:document:meta:<id>            document row
//	lexdex:document:fp:<hash>            fingerprint → id index
//	lexdex:document:ident:<identity>     (number,type)/title → id index
//	lexdex:article:<docID>:<num>:<idx>   article chunk row
//	lexdex:registry:<category>:<urlkey>  registry entry
package document

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phapluat-cloud/lexdex/internal/db"
	"github.com/phapluat-cloud/lexdex/internal/domain"
	"github.com/phapluat-cloud/lexdex/internal/vntext"
)

const (
	metaPrefix     = "lexdex:document:meta:"
	fpPrefix       = "lexdex:document:fp:"
	identPrefix    = "lexdex:document:ident:"
	articlePrefix  = "lexdex:article:"
	registryPrefix = "lexdex:registry:"
)

// store is the consumer interface for document rows (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo implements the document/article store contract of the pipeline.
type Repo struct {
	store store
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// GetByFingerprint finds the document whose last stored content hash
// matches, for change detection.
func (r *Repo) GetByFingerprint(ctx context.Context, hash string) (domain.Document, error) {
	idx, err := r.store.HGetAll(ctx, fpPrefix+hash)
	if err != nil {
		return domain.Document{}, fmt.Errorf("hgetall fingerprint index: %w", err)
	}
	id := idx["id"]
	if id == "" {
		return domain.Document{}, fmt.Errorf("fingerprint %s: %w", hash, domain.ErrNotFound)
	}
	return r.getByID(ctx, id)
}

// Upsert creates or updates a document. Identity is (number, type),
// falling back to the normalized title, so a re-crawled document keeps
// its identifier. Returns the id and whether a new row was created.
func (r *Repo) Upsert(ctx context.Context, doc domain.Document) (string, bool, error) {
	identKey := identPrefix + identity(doc)

	idx, err := r.store.HGetAll(ctx, identKey)
	if err != nil {
		return "", false, fmt.Errorf("hgetall identity index: %w", err)
	}

	created := false
	if id := idx["id"]; id != "" {
		doc.ID = id
		// Drop the stale fingerprint index when content changed.
		if old, err := r.getByID(ctx, id); err == nil &&
			old.Fingerprint != "" && old.Fingerprint != doc.Fingerprint {
			if err := r.store.Del(ctx, fpPrefix+old.Fingerprint); err != nil {
				return "", false, fmt.Errorf("del stale fingerprint: %w", err)
			}
		}
	} else {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		created = true
	}

	if err := r.store.HSet(ctx, metaPrefix+doc.ID, documentToHash(doc)); err != nil {
		return "", false, fmt.Errorf("hset document %s: %w", doc.ID, err)
	}
	if err := r.store.HSet(ctx, identKey, map[string]string{"id": doc.ID}); err != nil {
		return "", false, fmt.Errorf("hset identity index: %w", err)
	}
	if doc.Fingerprint != "" {
		if err := r.store.HSet(ctx, fpPrefix+doc.Fingerprint, map[string]string{"id": doc.ID}); err != nil {
			return "", false, fmt.Errorf("hset fingerprint index: %w", err)
		}
	}
	return doc.ID, created, nil
}

// UpsertChunks stores a batch of article chunks in one round-trip.
// Keys derive from (document id, article number, chunk index), so the
// write is idempotent: re-running a pipeline overwrites in place.
func (r *Repo) UpsertChunks(ctx context.Context, chunks []domain.Article) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	items := make([]db.HashSetItem, len(chunks))
	for i, c := range chunks {
		fields, err := articleToHash(c)
		if err != nil {
			return 0, fmt.Errorf("encode chunk %s: %w", c.ID, err)
		}
		items[i] = db.HashSetItem{Key: chunkKey(c), Fields: fields}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return 0, fmt.Errorf("hset chunks: %w", err)
	}
	return len(chunks), nil
}

// CountByCategory reports stored document and article-chunk counts for
// a category, for the cached counters on the category row.
func (r *Repo) CountByCategory(ctx context.Context, categoryID string) (int, int, error) {
	keys, err := r.store.Scan(ctx, metaPrefix+"*")
	if err != nil {
		return 0, 0, fmt.Errorf("scan documents: %w", err)
	}
	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return 0, 0, fmt.Errorf("load documents: %w", err)
	}

	docs, articles := 0, 0
	for _, m := range rows {
		if m["category_id"] != categoryID {
			continue
		}
		docs++
		chunkKeys, err := r.store.Scan(ctx, articlePrefix+m["id"]+":*")
		if err != nil {
			return 0, 0, fmt.Errorf("scan articles: %w", err)
		}
		articles += len(chunkKeys)
	}
	return docs, articles, nil
}

// ListRegistry returns the registry entries for a category ordered by
// priority.
func (r *Repo) ListRegistry(ctx context.Context, category string) ([]domain.RegistryEntry, error) {
	keys, err := r.store.Scan(ctx, registryPrefix+category+":*")
	if err != nil {
		return nil, fmt.Errorf("scan registry: %w", err)
	}
	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	entries := make([]domain.RegistryEntry, 0, len(rows))
	for _, m := range rows {
		if len(m) == 0 {
			continue
		}
		entries = append(entries, registryFromHash(m))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Priority < entries[j].Priority })
	return entries, nil
}

// UpsertRegistry stores a registry entry keyed by category and URL.
func (r *Repo) UpsertRegistry(ctx context.Context, e domain.RegistryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	key := registryPrefix + e.CategoryName + ":" + urlKey(e.URL)
	if err := r.store.HSet(ctx, key, registryToHash(e)); err != nil {
		return fmt.Errorf("hset registry entry: %w", err)
	}
	return nil
}

// TouchRegistry records the fingerprint seen for a registry URL on the
// latest crawl, whether or not the document changed.
func (r *Repo) TouchRegistry(ctx context.Context, category, url, hash string) error {
	key := registryPrefix + category + ":" + urlKey(url)
	fields := map[string]string{
		"last_content_hash": hash,
		"checked_at":        time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("touch registry entry: %w", err)
	}
	return nil
}

func (r *Repo) getByID(ctx context.Context, id string) (domain.Document, error) {
	m, err := r.store.HGetAll(ctx, metaPrefix+id)
	if err != nil {
		return domain.Document{}, fmt.Errorf("hgetall document %s: %w", id, err)
	}
	if len(m) == 0 {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return documentFromHash(m), nil
}

// identity derives the upsert identity key: (number, type) when the
// document number is known, the normalized title otherwise.
func identity(doc domain.Document) string {
	if doc.Number != "" {
		return string(doc.Type) + ":" + strings.ReplaceAll(doc.Number, "/", "_")
	}
	return "title:" + urlKey(strings.ToLower(vntext.CleanText(doc.Title)))
}

func chunkKey(c domain.Article) string {
	return fmt.Sprintf("%s%s:%d:%d", articlePrefix, c.DocumentID, c.ArticleNumber, c.ChunkIndex)
}

func urlKey(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
