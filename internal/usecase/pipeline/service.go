// Package pipeline runs the ingestion flow for one category: discover
// registered URLs, fetch, detect changes by fingerprint, parse, embed,
// and store, with a run record finalized exactly once per execution.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/phapluat-cloud/lexdex/internal/domain"
	"github.com/phapluat-cloud/lexdex/internal/metrics"
	"github.com/phapluat-cloud/lexdex/internal/parser"
	"github.com/phapluat-cloud/lexdex/internal/splitter"
)

// chunkBatchSize bounds the number of article chunks per embedding call
// and per store round-trip.
const chunkBatchSize = 50

// Options controls a single pipeline execution.
type Options struct {
	Limit   int // max registry URLs to process, 0 = all
	Trigger domain.TriggerType
	Force   bool // reprocess documents whose fingerprint is unchanged
}

// Service orchestrates the ingestion pipeline. One Run processes one
// category; runs for different categories may proceed concurrently.
type Service struct {
	categories CategoryStore
	documents  DocumentStore
	runs       RunStore
	fetcher    Fetcher
	resolver   CategoryResolver
	embedder   domain.Embedder
	maxChars   int
	logger     *zap.Logger
}

// New creates a pipeline service. maxChars <= 0 selects the default
// chunk size.
func New(
	categories CategoryStore,
	documents DocumentStore,
	runs RunStore,
	fetcher Fetcher,
	resolver CategoryResolver,
	embedder domain.Embedder,
	maxChars int,
	logger *zap.Logger,
) *Service {
	if maxChars <= 0 {
		maxChars = splitter.DefaultMaxChars
	}
	return &Service{
		categories: categories,
		documents:  documents,
		runs:       runs,
		fetcher:    fetcher,
		resolver:   resolver,
		embedder:   embedder,
		maxChars:   maxChars,
		logger:     logger,
	}
}

// Run executes the pipeline for a category. An unknown category is the
// only error that aborts before a run record exists; every later
// failure is captured on the run record, which is always finalized.
// The returned run reflects the terminal state.
func (s *Service) Run(ctx context.Context, categoryName string, opts Options) (domain.PipelineRun, error) {
	cat, err := s.categories.GetByName(ctx, categoryName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PipelineRun{}, fmt.Errorf("category %s: %w", categoryName, domain.ErrUnknownCategory)
		}
		return domain.PipelineRun{}, fmt.Errorf("get category %s: %w", categoryName, err)
	}

	if opts.Trigger == "" {
		opts.Trigger = domain.TriggerManual
	}
	run := domain.PipelineRun{
		ID:           ulid.Make().String(),
		CategoryID:   cat.ID,
		CategoryName: cat.Name,
		Status:       domain.RunRunning,
		Trigger:      opts.Trigger,
		StartedAt:    time.Now().UTC(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return domain.PipelineRun{}, fmt.Errorf("create run record: %w", err)
	}

	s.logger.Info("pipeline run started",
		zap.String("run_id", run.ID),
		zap.String("category", cat.Name),
		zap.String("trigger", string(opts.Trigger)),
	)

	s.execute(ctx, cat, opts, &run)

	run.CompletedAt = time.Now().UTC()
	if err := s.runs.Finalize(ctx, run); err != nil {
		s.logger.Error("failed to finalize run record",
			zap.String("run_id", run.ID), zap.Error(err))
	}

	metrics.PipelineRunsTotal.WithLabelValues(cat.Name, string(run.Status)).Inc()
	metrics.PipelineRunDuration.WithLabelValues(cat.Name).Observe(run.Duration().Seconds())

	s.logger.Info("pipeline run finished",
		zap.String("run_id", run.ID),
		zap.String("category", cat.Name),
		zap.String("status", string(run.Status)),
		zap.Int("documents_found", run.DocumentsFound),
		zap.Int("documents_new", run.DocumentsNew),
		zap.Int("documents_updated", run.DocumentsUpdated),
		zap.Int("documents_skipped", run.DocumentsSkipped),
		zap.Int("articles_indexed", run.ArticlesIndexed),
		zap.Duration("duration", run.Duration()),
	)

	if run.Status == domain.RunFailed && run.ErrorMessage != "" {
		return run, fmt.Errorf("run %s: %s", run.ID, run.ErrorMessage)
	}
	return run, nil
}

// execute drives the phases and records the outcome on the run.
func (s *Service) execute(ctx context.Context, cat domain.Category, opts Options, run *domain.PipelineRun) {
	entries, err := s.documents.ListRegistry(ctx, cat.Name)
	if err != nil {
		s.fail(run, fmt.Sprintf("list registry: %v", err))
		return
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	run.DocumentsFound = len(entries)

	for _, entry := range entries {
		if ctx.Err() != nil {
			s.fail(run, fmt.Sprintf("run aborted: %v", ctx.Err()))
			return
		}
		if err := s.processEntry(ctx, cat, opts, run, entry); err != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", entry.URL, err))
			metrics.DocumentsProcessedTotal.WithLabelValues(cat.Name, "failed").Inc()
			s.logger.Warn("document processing failed",
				zap.String("run_id", run.ID),
				zap.String("url", entry.URL),
				zap.Error(err),
			)
		}
	}

	// A run that discovered new documents but indexed nothing produced
	// no searchable content and must not be reported as a success.
	if run.DocumentsNew > 0 && run.ArticlesIndexed == 0 {
		s.fail(run, fmt.Sprintf("%d new documents yielded no indexed articles: %v",
			run.DocumentsNew, domain.ErrValidationFailed))
		return
	}

	run.Status = domain.RunCompleted
	s.refreshCounts(ctx, cat, run)
}

// processEntry handles one registry URL end to end. A returned error is
// a per-document failure and never aborts the run.
func (s *Service) processEntry(
	ctx context.Context, cat domain.Category, opts Options,
	run *domain.PipelineRun, entry domain.RegistryEntry,
) error {
	raw, err := s.fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		metrics.FetchRequestsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.FetchRequestsTotal.WithLabelValues("success").Inc()

	fingerprint := parser.Fingerprint(raw)

	if !opts.Force {
		if _, err := s.documents.GetByFingerprint(ctx, fingerprint); err == nil {
			run.DocumentsSkipped++
			metrics.DocumentsProcessedTotal.WithLabelValues(cat.Name, "skipped").Inc()
			return s.documents.TouchRegistry(ctx, cat.Name, entry.URL, fingerprint)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("fingerprint lookup: %w", err)
		}
	}

	parsed, err := parser.Parse(entry.URL, raw)
	if err != nil {
		return err
	}

	doc := parsed.Document
	doc.Fingerprint = fingerprint
	doc.CategoryID = cat.ID

	// Prefer the category named in the document title. Titles with no
	// extractable legal domain keep the run's category.
	if titleCatID, err := s.resolver.CategoryFromTitle(ctx, doc.Title); err != nil {
		return fmt.Errorf("resolve category from title: %w", err)
	} else if titleCatID != "" {
		doc.CategoryID = titleCatID
	}

	docID, created, err := s.documents.Upsert(ctx, doc)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	if created {
		run.DocumentsNew++
		metrics.DocumentsProcessedTotal.WithLabelValues(cat.Name, "new").Inc()
	} else {
		run.DocumentsUpdated++
		metrics.DocumentsProcessedTotal.WithLabelValues(cat.Name, "updated").Inc()
	}

	chunks := s.chunk(docID, parsed.Articles)
	indexed, err := s.embedAndStore(ctx, chunks)
	run.ArticlesIndexed += indexed
	run.EmbeddingsGenerated += indexed
	if err != nil {
		return err
	}
	metrics.ArticlesIndexedTotal.WithLabelValues(cat.Name).Add(float64(indexed))

	return s.documents.TouchRegistry(ctx, cat.Name, entry.URL, fingerprint)
}

// chunk assigns document and chunk identifiers and splits oversized
// articles.
func (s *Service) chunk(docID string, articles []domain.Article) []domain.Article {
	var chunks []domain.Article
	for _, a := range articles {
		a.DocumentID = docID
		a.ID = domain.ArticleID(docID, a.ArticleNumber)
		chunks = append(chunks, splitter.Split(a, s.maxChars)...)
	}
	return chunks
}

// embedAndStore embeds and persists chunks in batches, reporting how
// many chunks were stored even when a later batch fails.
func (s *Service) embedAndStore(ctx context.Context, chunks []domain.Article) (int, error) {
	stored := 0
	for offset := 0; offset < len(chunks); offset += chunkBatchSize {
		end := min(offset+chunkBatchSize, len(chunks))
		batch := chunks[offset:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Title + "\n" + c.Content
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return stored, fmt.Errorf("embed batch: %w", err)
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}

		n, err := s.documents.UpsertChunks(ctx, batch)
		stored += n
		if err != nil {
			return stored, fmt.Errorf("store chunks: %w", err)
		}
	}
	return stored, nil
}

// refreshCounts updates the cached counters on the category row. Count
// failures degrade the counters, not the run.
func (s *Service) refreshCounts(ctx context.Context, cat domain.Category, run *domain.PipelineRun) {
	docs, articles, err := s.documents.CountByCategory(ctx, cat.ID)
	if err != nil {
		s.logger.Warn("failed to count category content",
			zap.String("category", cat.Name), zap.Error(err))
		return
	}
	if err := s.categories.UpdateCounts(ctx, cat.ID, docs, articles); err != nil {
		s.logger.Warn("failed to refresh category counts",
			zap.String("category", cat.Name), zap.Error(err))
	}
}

func (s *Service) fail(run *domain.PipelineRun, msg string) {
	run.Status = domain.RunFailed
	run.ErrorMessage = msg
}
