// Package chi exposes the operational HTTP surface: health, metrics,
// scheduler status, run records, and manual pipeline triggers.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/phapluat-cloud/lexdex/internal/domain"
	"github.com/phapluat-cloud/lexdex/internal/usecase/pipeline"
	"github.com/phapluat-cloud/lexdex/internal/usecase/worker"
)

// Worker triggers runs and reports scheduled jobs.
type Worker interface {
	RunCategory(ctx context.Context, categoryName string, opts pipeline.Options) domain.PipelineRun
	Status() []worker.JobStatus
}

// RunReader reads pipeline-run audit records.
type RunReader interface {
	Get(ctx context.Context, id string) (domain.PipelineRun, error)
}

// CategoryReader lists categories for the status endpoint.
type CategoryReader interface {
	ListAll(ctx context.Context) ([]domain.Category, error)
}

// Pinger checks store liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the ops HTTP server.
type Server struct {
	worker     Worker
	runs       RunReader
	categories CategoryReader
	store      Pinger
	logger     *zap.Logger
}

// NewServer creates an ops server.
func NewServer(w Worker, runs RunReader, categories CategoryReader, store Pinger, logger *zap.Logger) *Server {
	return &Server{
		worker:     w,
		runs:       runs,
		categories: categories,
		store:      store,
		logger:     logger,
	}
}

// Router builds the chi router for the ops surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/status", s.handleStatus)
	r.Get("/runs/{id}", s.handleGetRun)
	r.Post("/categories/{name}/run", s.handleTriggerRun)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type categoryStatus struct {
	Name          string `json:"name"`
	DisplayName   string `json:"display_name"`
	Active        bool   `json:"active"`
	DocumentCount int    `json:"document_count"`
	ArticleCount  int    `json:"article_count"`
	WorkerStatus  string `json:"worker_status,omitempty"`
}

type statusResponse struct {
	Categories []categoryStatus   `json:"categories"`
	Jobs       []worker.JobStatus `json:"jobs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cats, err := s.categories.ListAll(r.Context())
	if err != nil {
		s.logger.Error("list categories", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	resp := statusResponse{
		Categories: make([]categoryStatus, 0, len(cats)),
		Jobs:       s.worker.Status(),
	}
	for _, c := range cats {
		resp.Categories = append(resp.Categories, categoryStatus{
			Name:          c.Name,
			DisplayName:   c.DisplayName,
			Active:        c.Active,
			DocumentCount: c.DocumentCount,
			ArticleCount:  c.ArticleCount,
			WorkerStatus:  c.WorkerStatus,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type runResponse struct {
	ID                  string   `json:"id"`
	Category            string   `json:"category"`
	Status              string   `json:"status"`
	Trigger             string   `json:"trigger"`
	DocumentsFound      int      `json:"documents_found"`
	DocumentsNew        int      `json:"documents_new"`
	DocumentsUpdated    int      `json:"documents_updated"`
	DocumentsSkipped    int      `json:"documents_skipped"`
	ArticlesIndexed     int      `json:"articles_indexed"`
	EmbeddingsGenerated int      `json:"embeddings_generated"`
	ErrorMessage        string   `json:"error_message,omitempty"`
	Errors              []string `json:"errors,omitempty"`
	StartedAt           string   `json:"started_at"`
	CompletedAt         string   `json:"completed_at,omitempty"`
	DurationSec         float64  `json:"duration_sec"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run))
}

// handleTriggerRun starts a pipeline run in the background and answers
// 202 immediately. Progress is observable via /status and /runs/{id}.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	opts := pipeline.Options{Trigger: domain.TriggerManual}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = n
	}
	if force, _ := strconv.ParseBool(r.URL.Query().Get("force")); force {
		opts.Force = true
		opts.Trigger = domain.TriggerForced
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		s.worker.RunCategory(ctx, name, opts)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"category": name,
		"status":   "accepted",
	})
}

func runToResponse(run domain.PipelineRun) runResponse {
	resp := runResponse{
		ID:                  run.ID,
		Category:            run.CategoryName,
		Status:              string(run.Status),
		Trigger:             string(run.Trigger),
		DocumentsFound:      run.DocumentsFound,
		DocumentsNew:        run.DocumentsNew,
		DocumentsUpdated:    run.DocumentsUpdated,
		DocumentsSkipped:    run.DocumentsSkipped,
		ArticlesIndexed:     run.ArticlesIndexed,
		EmbeddingsGenerated: run.EmbeddingsGenerated,
		ErrorMessage:        run.ErrorMessage,
		Errors:              run.Errors,
		StartedAt:           run.StartedAt.Format(time.RFC3339),
		DurationSec:         run.Duration().Seconds(),
	}
	if !run.CompletedAt.IsZero() {
		resp.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

// requestLogger emits a canonical log line per request and propagates
// X-Request-ID.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := middleware.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set("X-Request-ID", requestID)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http_request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", r.RemoteAddr),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
