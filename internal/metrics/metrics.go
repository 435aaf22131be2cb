// Package metrics defines the Prometheus collectors shared by both binaries.
// Collectors register on the default registry and are served by Handler at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fitflow/fitflow-backend/internal/cache"
)

var (
	// GenerationRequests counts generation calls by kind (plan, narrative, rerank) and outcome.
	GenerationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitflow_generation_requests_total",
			Help: "Generative model calls by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fitflow_generation_duration_seconds",
			Help:    "Generative model call latency",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 12, 20, 30},
		},
		[]string{"kind"},
	)

	// RerankOutcomes: ranked, identity (error/malformed), timeout, skipped.
	RerankOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitflow_rerank_outcomes_total",
			Help: "Reranker results by outcome",
		},
		[]string{"outcome"},
	)

	// RetrievalFallbacks counts random-sample fallbacks by reason.
	RetrievalFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitflow_retrieval_fallbacks_total",
			Help: "Retrieval fallbacks to the random corpus sample",
		},
		[]string{"reason"},
	)

	// RecommendCache counts cache lookups by result (hit, miss, shared).
	RecommendCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitflow_recommend_cache_total",
			Help: "Recommendation cache and in-flight dedup results",
		},
		[]string{"result"},
	)

	// BreakerState is 0=closed, 1=half-open, 2=open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fitflow_circuit_breaker_state",
			Help: "Circuit breaker state per upstream",
		},
		[]string{"name"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitflow_upstream_errors_total",
			Help: "Failed upstream calls by upstream and status",
		},
		[]string{"upstream", "status"},
	)
)

// cacheCollector reads cache statistics at scrape time.
type cacheCollector struct {
	stats     func() cache.Stats
	keys      *prometheus.Desc
	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
}

func newCacheCollector(name string, stats func() cache.Stats) *cacheCollector {
	labels := prometheus.Labels{"cache": name}
	return &cacheCollector{
		stats:     stats,
		keys:      prometheus.NewDesc("fitflow_cache_keys", "Entries currently held", nil, labels),
		hits:      prometheus.NewDesc("fitflow_cache_hits_total", "Lookups answered from cache", nil, labels),
		misses:    prometheus.NewDesc("fitflow_cache_misses_total", "Lookups not found or expired", nil, labels),
		evictions: prometheus.NewDesc("fitflow_cache_evictions_total", "Entries removed after expiry", nil, labels),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keys
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(s.Keys))
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
}

// RegisterCache exposes a cache's statistics on the default registry, labelled by name.
func RegisterCache(name string, stats func() cache.Stats) error {
	return prometheus.Register(newCacheCollector(name, stats))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
