// Package metrics holds the Prometheus instruments for the ingestion
// pipeline, fetcher, and embedding provider. Registration is explicit
// from main, no init().
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lexdex",
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"category", "status"},
	)

	PipelineRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lexdex",
			Name:      "pipeline_run_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"category"},
	)

	DocumentsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lexdex",
			Name:      "documents_processed_total",
			Help:      "Documents processed by the pipeline",
		},
		[]string{"category", "result"}, // new / updated / skipped / failed
	)

	ArticlesIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lexdex",
			Name:      "articles_indexed_total",
			Help:      "Article chunks embedded and stored",
		},
		[]string{"category"},
	)

	FetchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lexdex",
			Name:      "fetch_requests_total",
			Help:      "Document fetch attempts",
		},
		[]string{"status"}, // success / error
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lexdex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding batch requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lexdex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lexdex",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	WorkerRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lexdex",
			Name:      "worker_retries_total",
			Help:      "Pipeline retry attempts by the worker",
		},
		[]string{"category"},
	)
)

var registered bool

// Register registers all lexdex metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(PipelineRunDuration)
	prometheus.MustRegister(DocumentsProcessedTotal)
	prometheus.MustRegister(ArticlesIndexedTotal)
	prometheus.MustRegister(FetchRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(WorkerRetriesTotal)
	registered = true
}
