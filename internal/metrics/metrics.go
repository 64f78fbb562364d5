// Package metrics exposes Prometheus collectors for the crawl pipeline.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal         *prometheus.CounterVec
	fetchRetriesTotal    prometheus.Counter
	inflightFetches      prometheus.Gauge
	pagesTotal           prometheus.Counter
	changesTotal         *prometheus.CounterVec
	crawlRunsTotal       *prometheus.CounterVec
	crawlDurationSeconds prometheus.Histogram
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookwatch_fetches_total",
				Help: "Total completed fetches, labeled by outcome (success, transient, permanent).",
			},
			[]string{"outcome"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bookwatch_fetch_retries_total",
				Help: "Total fetch retry attempts after a transient failure.",
			},
		)

		inflightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookwatch_inflight_fetches",
				Help: "Number of fetches currently holding a concurrency token.",
			},
		)

		pagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bookwatch_index_pages_total",
				Help: "Total catalog index pages traversed.",
			},
		)

		changesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookwatch_changes_total",
				Help: "Total change events emitted, labeled by change type.",
			},
			[]string{"type"},
		)

		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookwatch_crawl_runs_total",
				Help: "Total crawl runs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		crawlDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bookwatch_crawl_duration_seconds",
				Help:    "Duration of complete crawl runs.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookwatch_http_requests_total",
				Help: "Total API requests, labeled by method and status code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookwatch_http_request_duration_seconds",
				Help:    "API request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		)
	})
}

// ObserveFetch records a completed fetch by outcome.
func ObserveFetch(outcome string) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetry records one retry attempt.
func ObserveRetry() {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.Inc()
}

// FetchStarted marks a fetch acquiring its concurrency token.
func FetchStarted() {
	if inflightFetches == nil {
		return
	}
	inflightFetches.Inc()
}

// FetchFinished marks a fetch releasing its concurrency token.
func FetchFinished() {
	if inflightFetches == nil {
		return
	}
	inflightFetches.Dec()
}

// ObserveIndexPage records one traversed catalog page.
func ObserveIndexPage() {
	if pagesTotal == nil {
		return
	}
	pagesTotal.Inc()
}

// ObserveChange records an emitted change event.
func ObserveChange(changeType string) {
	if changesTotal == nil {
		return
	}
	changesTotal.WithLabelValues(changeType).Inc()
}

// ObserveCrawlRun records a finished crawl run and its duration.
func ObserveCrawlRun(status string, duration time.Duration) {
	if crawlRunsTotal == nil {
		return
	}
	crawlRunsTotal.WithLabelValues(status).Inc()
	crawlDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest records an API request for the middleware.
func ObserveHTTPRequest(method string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}
