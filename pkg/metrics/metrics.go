// Package metrics defines the Prometheus collectors of the search service.
// Every series lives under the "filesearch" namespace, grouped by subsystem:
// http, search, cache, corpus and backend.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "filesearch"

type Metrics struct {
	// http
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// search
	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       prometheus.Histogram
	SearchResultsCount  prometheus.Histogram
	ShardScoreDuration  prometheus.Histogram
	WorkerFailuresTotal prometheus.Counter

	// cache
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// corpus
	CorpusDocuments    prometheus.Gauge
	CorpusTerms        prometheus.Gauge
	CorpusReloadsTotal *prometheus.CounterVec

	// backend
	CircuitState *prometheus.GaugeVec
}

func counter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func gauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func histogram(subsystem, name, help string, buckets []float64) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

// New creates the collectors and registers them with reg. It panics if reg
// already holds them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: counterVec("http", "requests_total",
			"HTTP requests by method, route and status.", "method", "path", "status"),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: gauge("http", "requests_in_flight", "HTTP requests being served."),

		SearchQueriesTotal: counterVec("search", "queries_total",
			"Queries by outcome: matched, no_match, no_overlap or error.", "outcome"),
		SearchLatency: histogram("search", "latency_seconds", "Time to vectorise and score one query.",
			[]float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}),
		SearchResultsCount: histogram("search", "scored_documents", "Documents with a score per query.",
			[]float64{0, 1, 5, 10, 50, 100, 500, 1000, 10000}),
		ShardScoreDuration: histogram("search", "shard_duration_seconds", "Time one worker spends scoring its shard.",
			[]float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}),
		WorkerFailuresTotal: counter("search", "worker_failures_total", "Scoring workers that ended with an error."),

		CacheHitsTotal:   counter("cache", "hits_total", "Result cache hits."),
		CacheMissesTotal: counter("cache", "misses_total", "Result cache misses, including backend errors."),

		CorpusDocuments:    gauge("corpus", "documents", "Documents in the live index."),
		CorpusTerms:        gauge("corpus", "terms", "Distinct terms in the live index."),
		CorpusReloadsTotal: counterVec("corpus", "reloads_total", "Corpus rebuilds by status.", "status"),

		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per backend: 0 closed, 1 open, 2 half-open.",
		}, []string{"backend"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.SearchQueriesTotal, m.SearchLatency, m.SearchResultsCount, m.ShardScoreDuration, m.WorkerFailuresTotal,
		m.CacheHitsTotal, m.CacheMissesTotal,
		m.CorpusDocuments, m.CorpusTerms, m.CorpusReloadsTotal,
		m.CircuitState,
	)
	return m
}

// Handler returns the scrape handler for the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
