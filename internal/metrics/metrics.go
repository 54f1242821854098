// Package metrics provides Prometheus metrics for the ingestion and retrieval pipeline.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all pipeline collectors.
type Metrics struct {
	StageDuration     *prometheus.HistogramVec
	DocumentsTotal    *prometheus.CounterVec
	ChunksIndexed     *prometheus.CounterVec
	EmbeddingRequests *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
	SearchRequests    *prometheus.CounterVec
	Extractions       *prometheus.CounterVec
}

// New creates and registers all collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.StageDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_stage_duration_seconds",
			Help:    "Duration of document processing stages in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	m.DocumentsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_documents_total",
			Help: "Total number of processed documents by final status",
		},
		[]string{"status"},
	)

	m.ChunksIndexed = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_chunks_indexed_total",
			Help: "Total number of chunks submitted for indexing by result",
		},
		[]string{"result"},
	)

	m.EmbeddingRequests = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_embedding_requests_total",
			Help: "Total number of embedding provider requests by result",
		},
		[]string{"result"},
	)

	m.CacheLookups = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_cache_lookups_total",
			Help: "Total number of cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	m.SearchRequests = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_search_requests_total",
			Help: "Total number of vector searches by classified query type",
		},
		[]string{"query_type"},
	)

	m.Extractions = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_extractions_total",
			Help: "Total number of successful extractions by method",
		},
		[]string{"method"},
	)

	return m
}

// ObserveStage records how long a processing stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// DocumentProcessed counts a document by its terminal status (done, failed).
func (m *Metrics) DocumentProcessed(status string) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(status).Inc()
}

// ChunksIndexedResult records per-chunk indexing outcomes.
func (m *Metrics) ChunksIndexedResult(succeeded, failed int) {
	if m == nil {
		return
	}
	m.ChunksIndexed.WithLabelValues("success").Add(float64(succeeded))
	m.ChunksIndexed.WithLabelValues("error").Add(float64(failed))
}

// EmbeddingRequest counts a single provider call.
func (m *Metrics) EmbeddingRequest(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.EmbeddingRequests.WithLabelValues(result).Inc()
}

// CacheLookup implements cache.Observer.
func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// SearchRequest counts a search by its classified query type.
func (m *Metrics) SearchRequest(queryType string) {
	if m == nil {
		return
	}
	m.SearchRequests.WithLabelValues(queryType).Inc()
}

// Extraction counts a successful extraction by method.
func (m *Metrics) Extraction(method string) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(method).Inc()
}
