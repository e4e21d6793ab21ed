// Package worker schedules recurring pipeline runs per category and
// retries failed runs with exponential backoff. Overlapping runs of the
// same job are skipped, never queued.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/phapluat-cloud/lexdex/internal/domain"
	"github.com/phapluat-cloud/lexdex/internal/metrics"
	"github.com/phapluat-cloud/lexdex/internal/usecase/pipeline"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 30 * time.Second

	// staggerStepMin spreads category jobs that share a schedule slot so
	// they do not hit the source site at the same minute.
	staggerStepMin = 7
	staggerSpanMin = 50
)

// Schedule describes when one category is crawled.
type Schedule struct {
	Category string
	Cadence  string // daily | weekly | monthly
	At       string // HH:MM, 24h
	Limit    int    // max documents per run, 0 = all
}

// JobStatus is a snapshot of one scheduled job.
type JobStatus struct {
	Category string    `json:"category"`
	Spec     string    `json:"spec"`
	NextRun  time.Time `json:"next_run"`
}

// Service owns the cron scheduler and the retry policy around runs.
type Service struct {
	pipeline     Pipeline
	categories   CategoryStore
	cron         *cron.Cron
	maxRetries   int
	retryBackoff time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	jobs         []JobStatus
	entryIDs     []cron.EntryID
	logger       *zap.Logger
}

// Config holds worker settings.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// New creates a worker service. Jobs are registered with Register and
// start firing after Start.
func New(p Pipeline, categories CategoryStore, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &Service{
		pipeline:   p,
		categories: categories,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		sleep:        sleepCtx,
		logger:       logger,
	}
}

// Register adds one scheduled job per schedule. The index-based stagger
// offsets categories sharing the same HH:MM so runs never start
// simultaneously.
func (s *Service) Register(schedules []Schedule) error {
	for i, sched := range schedules {
		spec, err := cronSpec(sched.Cadence, sched.At, (i*staggerStepMin)%staggerSpanMin)
		if err != nil {
			return fmt.Errorf("schedule for %s: %w", sched.Category, err)
		}
		sched := sched
		id, err := s.cron.AddFunc(spec, func() {
			s.RunCategory(context.Background(), sched.Category, pipeline.Options{
				Limit:   sched.Limit,
				Trigger: domain.TriggerScheduled,
			})
		})
		if err != nil {
			return fmt.Errorf("register job for %s: %w", sched.Category, err)
		}
		s.entryIDs = append(s.entryIDs, id)
		s.jobs = append(s.jobs, JobStatus{Category: sched.Category, Spec: spec})
		s.logger.Info("scheduled category",
			zap.String("category", sched.Category),
			zap.String("spec", spec),
		)
	}
	return nil
}

// Start begins firing scheduled jobs.
func (s *Service) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for in-flight runs to finish.
func (s *Service) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker shutdown: %w", ctx.Err())
	}
}

// Status reports the registered jobs with their next fire times.
func (s *Service) Status() []JobStatus {
	out := make([]JobStatus, len(s.jobs))
	copy(out, s.jobs)
	for i, id := range s.entryIDs {
		out[i].NextRun = s.cron.Entry(id).Next
	}
	return out
}

// RunCategory runs the pipeline for one category with retries. Each
// failed attempt backs off exponentially; the terminal outcome is
// persisted as the category's worker status.
func (s *Service) RunCategory(ctx context.Context, categoryName string, opts pipeline.Options) domain.PipelineRun {
	var (
		run domain.PipelineRun
		err error
	)
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		run, err = s.pipeline.Run(ctx, categoryName, opts)
		if err == nil {
			break
		}
		s.logger.Warn("pipeline attempt failed",
			zap.String("category", categoryName),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", s.maxRetries),
			zap.Error(err),
		)
		if attempt == s.maxRetries {
			break
		}
		metrics.WorkerRetriesTotal.WithLabelValues(categoryName).Inc()
		backoff := s.retryBackoff * time.Duration(1<<(attempt-1))
		if sleepErr := s.sleep(ctx, backoff); sleepErr != nil {
			s.logger.Warn("retry wait aborted",
				zap.String("category", categoryName), zap.Error(sleepErr))
			break
		}
	}

	s.persistStatus(ctx, categoryName, run, err)
	return run
}

// persistStatus records the terminal outcome on the category row:
// success for a clean run, partial for a completed run with
// per-document errors, failed when retries are exhausted.
func (s *Service) persistStatus(ctx context.Context, categoryName string, run domain.PipelineRun, runErr error) {
	status := domain.WorkerStatusSuccess
	switch {
	case runErr != nil:
		status = domain.WorkerStatusFailed
	case len(run.Errors) > 0:
		status = domain.WorkerStatusPartial
	}

	catID := run.CategoryID
	if catID == "" {
		cat, err := s.categories.GetByName(ctx, categoryName)
		if err != nil {
			s.logger.Warn("cannot persist worker status for unknown category",
				zap.String("category", categoryName), zap.Error(err))
			return
		}
		catID = cat.ID
	}
	if err := s.categories.UpdateWorkerStatus(ctx, catID, status); err != nil {
		s.logger.Warn("failed to persist worker status",
			zap.String("category", categoryName), zap.Error(err))
	}
}

// cronSpec builds a cron expression from a cadence keyword, an HH:MM
// time of day, and a stagger offset in minutes.
func cronSpec(cadence, at string, staggerMin int) (string, error) {
	hour, minute, err := parseHHMM(at)
	if err != nil {
		return "", err
	}
	minute += staggerMin
	hour = (hour + minute/60) % 24
	minute %= 60

	switch strings.ToLower(cadence) {
	case "daily", "":
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case "weekly":
		return fmt.Sprintf("%d %d * * 0", minute, hour), nil
	case "monthly":
		return fmt.Sprintf("%d %d 1 * *", minute, hour), nil
	default:
		return "", fmt.Errorf("unknown cadence %q", cadence)
	}
}

func parseHHMM(at string) (int, int, error) {
	if at == "" {
		return 2, 0, nil // default 02:00, outside business hours
	}
	hh, mm, ok := strings.Cut(at, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", at)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", at)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", at)
	}
	return hour, minute, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
