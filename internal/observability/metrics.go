// Package observability exposes Prometheus metrics for ingestion, index
// builds, embedding calls and retrieval.
//
// Every method is safe on a nil *Metrics, so components take metrics as an
// optional dependency:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	metrics.Retrieval("top", "ok", len(candidates), time.Since(start))
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "evbench"

// Metrics holds the application collectors.
type Metrics struct {
	// EmbeddingRequests counts remote embedding calls.
	// Labels: model, status (success|error)
	EmbeddingRequests *prometheus.CounterVec

	// EmbeddingDuration measures remote embedding latency in seconds.
	// Labels: model
	EmbeddingDuration *prometheus.HistogramVec

	// EmbeddingRetries counts retried embedding calls.
	// Labels: model
	EmbeddingRetries *prometheus.CounterVec

	// RetrievalRequests counts retrieval calls.
	// Labels: mode (generous|top), status (ok|unavailable|error)
	RetrievalRequests *prometheus.CounterVec

	// RetrievalDuration measures retrieval latency in seconds.
	// Labels: mode
	RetrievalDuration *prometheus.HistogramVec

	// RetrievalCandidates records how many candidates a call returned.
	// Labels: mode
	RetrievalCandidates *prometheus.HistogramVec

	// IndexVectors is the size of the loaded persistent index.
	IndexVectors prometheus.Gauge

	// IngestDocuments counts ingested documents.
	// Labels: outcome (chunked|skipped|failed)
	IngestDocuments *prometheus.CounterVec

	// BuildDuration measures full index builds in seconds.
	BuildDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics registers collectors with reg. When reg is a
// *prometheus.Registry, Handler serves it.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		EmbeddingRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Remote embedding requests by model and status",
		}, []string{"model", "status"}),
		EmbeddingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Remote embedding request latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"model"}),
		EmbeddingRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_retries_total",
			Help:      "Retried remote embedding requests",
		}, []string{"model"}),
		RetrievalRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_requests_total",
			Help:      "Retrieval calls by mode and status",
		}, []string{"mode", "status"}),
		RetrievalDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"mode"}),
		RetrievalCandidates: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_candidates",
			Help:      "Candidates returned per retrieval call",
			Buckets:   []float64{0, 1, 3, 5, 8, 13, 25, 50},
		}, []string{"mode"}),
		IndexVectors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_vectors",
			Help:      "Vectors in the loaded persistent index",
		}),
		IngestDocuments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_documents_total",
			Help:      "Ingested documents by outcome",
		}, []string{"outcome"}),
		BuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Persistent index build time",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	if r, ok := reg.(*prometheus.Registry); ok {
		m.registry = r
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// EmbeddingRequest records one remote embedding call.
func (m *Metrics) EmbeddingRequest(model string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.EmbeddingRequests.WithLabelValues(model, status(err, "success")).Inc()
	m.EmbeddingDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// EmbeddingRetry records a retried embedding call.
func (m *Metrics) EmbeddingRetry(model string) {
	if m == nil {
		return
	}
	m.EmbeddingRetries.WithLabelValues(model).Inc()
}

// Retrieval records one retrieval call. Status is ok, unavailable or error.
func (m *Metrics) Retrieval(mode, status string, candidates int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RetrievalRequests.WithLabelValues(mode, status).Inc()
	m.RetrievalDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	m.RetrievalCandidates.WithLabelValues(mode).Observe(float64(candidates))
}

// IndexLoaded sets the loaded index size.
func (m *Metrics) IndexLoaded(vectors int) {
	if m == nil {
		return
	}
	m.IndexVectors.Set(float64(vectors))
}

// Ingested records one document outcome.
func (m *Metrics) Ingested(outcome string) {
	if m == nil {
		return
	}
	m.IngestDocuments.WithLabelValues(outcome).Inc()
}

// BuildFinished records a completed index build.
func (m *Metrics) BuildFinished(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BuildDuration.Observe(elapsed.Seconds())
}

func status(err error, ok string) string {
	if err != nil {
		return "error"
	}
	return ok
}
