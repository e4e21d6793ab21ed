package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/phapluat-cloud/lexdex/internal/config"
	"github.com/phapluat-cloud/lexdex/internal/db"
	dbMemory "github.com/phapluat-cloud/lexdex/internal/db/memory"
	dbRedis "github.com/phapluat-cloud/lexdex/internal/db/redis"
	"github.com/phapluat-cloud/lexdex/internal/domain"
	"github.com/phapluat-cloud/lexdex/internal/fetcher"
	logpkg "github.com/phapluat-cloud/lexdex/internal/logger"
	"github.com/phapluat-cloud/lexdex/internal/metrics"
	categoryrepo "github.com/phapluat-cloud/lexdex/internal/repository/category"
	documentrepo "github.com/phapluat-cloud/lexdex/internal/repository/document"
	runrepo "github.com/phapluat-cloud/lexdex/internal/repository/run"
	"github.com/phapluat-cloud/lexdex/internal/resolver"
	chiTransport "github.com/phapluat-cloud/lexdex/internal/transport/chi"
	openaiTransport "github.com/phapluat-cloud/lexdex/internal/transport/openai"
	pipelineuc "github.com/phapluat-cloud/lexdex/internal/usecase/pipeline"
	workeruc "github.com/phapluat-cloud/lexdex/internal/usecase/worker"
	"github.com/phapluat-cloud/lexdex/internal/version"
	"github.com/phapluat-cloud/lexdex/internal/vntext"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting lexdex ingestion service",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Int("categories", len(cfg.Categories)),
	)

	// Create database store based on driver
	var store db.Store
	switch cfg.Database.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
	case "memory":
		store = dbMemory.NewStore()
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.Register()

	embedder := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	// Non-fatal: a provider outage at boot only delays indexing, and
	// the worker retries failed runs anyway.
	healthCtx, cancelHealth := context.WithTimeout(ctx, 10*time.Second)
	if err := embedder.HealthCheck(healthCtx); err != nil {
		logger.Warn("Embedding provider unreachable", zap.Error(err))
	} else {
		logger.Info("Embedding provider reachable",
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("model", cfg.Embedding.Model),
		)
	}
	cancelHealth()

	// The oracle is optional: without it, unknown category labels are
	// rejected instead of validated.
	var oracle domain.Oracle
	if cfg.Oracle.Model != "" {
		oracle = openaiTransport.NewChatOracle(&openaiTransport.OracleConfig{
			APIKey:  cfg.Oracle.APIKey,
			BaseURL: cfg.Oracle.BaseURL,
			Model:   cfg.Oracle.Model,
			Logger:  logger,
		})
	}

	catRepo := categoryrepo.New(store)
	docRepo := documentrepo.New(store)
	runRepo := runrepo.New(store)

	catResolver := resolver.New(catRepo, oracle, logger)

	fetch := fetcher.New(fetcher.Config{
		Timeout:   time.Duration(cfg.Fetcher.TimeoutSec) * time.Second,
		MinDelay:  time.Duration(cfg.Fetcher.MinDelaySec) * time.Second,
		MaxJitter: time.Duration(cfg.Fetcher.MaxJitterSec) * time.Second,
		UserAgent: cfg.Fetcher.UserAgent,
		Stealth:   cfg.Fetcher.Stealth,
	}, logger)

	pipeline := pipelineuc.New(
		catRepo, docRepo, runRepo, fetch, catResolver, embedder,
		cfg.Pipeline.MaxChunkChars, logger,
	)

	worker := workeruc.New(pipeline, catRepo, workeruc.Config{
		MaxRetries:   cfg.Worker.MaxRetries,
		RetryBackoff: time.Duration(cfg.Worker.RetryBackoffSec) * time.Second,
	}, logger)

	if err := seedCategories(ctx, cfg, catRepo, docRepo, logger); err != nil {
		logger.Fatal("Failed to seed categories", zap.Error(err))
	}

	if cfg.Worker.Enabled {
		var schedules []workeruc.Schedule
		for _, cat := range cfg.Categories {
			if !cat.Active {
				continue
			}
			schedules = append(schedules, workeruc.Schedule{
				Category: vntext.NormalizeCategoryName(cat.Name),
				Cadence:  cat.Schedule,
				At:       cat.Time,
				Limit:    cat.MaxDocuments,
			})
		}
		if err := worker.Register(schedules); err != nil {
			logger.Fatal("Failed to register schedules", zap.Error(err))
		}
		worker.Start()
		logger.Info("Worker started", zap.Int("jobs", len(schedules)))
	}

	server := chiTransport.NewServer(worker, runRepo, catRepo, store, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if cfg.Worker.Enabled {
		if err := worker.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping worker", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Service stopped gracefully")
}

// seedCategories upserts the configured categories and their registry
// URLs so the first scheduled run has sources to crawl. Existing rows
// keep their counters and worker status.
func seedCategories(
	ctx context.Context,
	cfg config.Config,
	cats *categoryrepo.Repo,
	docs *documentrepo.Repo,
	logger *zap.Logger,
) error {
	for _, c := range cfg.Categories {
		name := vntext.NormalizeCategoryName(c.Name)
		id, err := cats.Upsert(ctx, domain.Category{
			Name:        name,
			DisplayName: c.DisplayName,
			Description: c.Description,
			Active:      c.Active,
		})
		if err != nil {
			return fmt.Errorf("upsert category %s: %w", name, err)
		}
		for i, url := range c.DocumentURLs {
			err := docs.UpsertRegistry(ctx, domain.RegistryEntry{
				CategoryID:   id,
				CategoryName: name,
				URL:          url,
				Priority:     i,
			})
			if err != nil {
				return fmt.Errorf("seed registry for %s: %w", name, err)
			}
		}
		logger.Info("seeded category",
			zap.String("name", name),
			zap.Int("urls", len(c.DocumentURLs)),
		)
	}
	return nil
}
