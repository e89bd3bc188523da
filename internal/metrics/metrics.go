// Package metrics exposes Prometheus collectors for the crawl store.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	recordsTotal               *prometheus.CounterVec
	bytesWrittenTotal          prometheus.Counter
	contentWritesTotal         *prometheus.CounterVec
	poolActive                 prometheus.Gauge
	poolIdle                   prometheus.Gauge
	poolBorrowWaitSeconds      prometheus.Histogram
	poolExhaustedTotal         prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	fetchRateLimitDelaySeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlstore_records_total",
				Help: "Total number of crawl records processed, labeled by outcome and reason.",
			},
			[]string{"outcome", "reason"},
		)

		bytesWrittenTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawlstore_bytes_written_total",
				Help: "Total number of value bytes written to the store.",
			},
		)

		contentWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlstore_content_writes_total",
				Help: "Content-table writes, labeled by whether the payload was stored or deduplicated.",
			},
			[]string{"result"},
		)

		poolActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawlstore_pool_active",
				Help: "Number of writer handles currently borrowed.",
			},
		)

		poolIdle = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawlstore_pool_idle",
				Help: "Number of writer handles idle in the pool.",
			},
		)

		poolBorrowWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawlstore_pool_borrow_wait_seconds",
				Help:    "Histogram of time spent waiting to borrow a writer handle.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
		)

		poolExhaustedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawlstore_pool_exhausted_total",
				Help: "Total number of borrows that gave up because the pool was exhausted.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		fetchRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawlstore_fetch_rate_limit_delay_seconds",
				Help:    "Time fetches spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRecord counts one processed record.
func ObserveRecord(outcome, reason string) {
	Init()
	recordsTotal.WithLabelValues(outcome, reason).Inc()
}

// ObserveBytesWritten adds to the written-bytes counter.
func ObserveBytesWritten(n int64) {
	if n <= 0 {
		return
	}
	Init()
	bytesWrittenTotal.Add(float64(n))
}

// ObserveContentWrite counts a content-table write. stored is false when the
// payload was already present.
func ObserveContentWrite(stored bool) {
	Init()
	result := "deduplicated"
	if stored {
		result = "stored"
	}
	contentWritesTotal.WithLabelValues(result).Inc()
}

// SetPoolSize publishes the current pool occupancy.
func SetPoolSize(active, idle int) {
	Init()
	poolActive.Set(float64(active))
	poolIdle.Set(float64(idle))
}

// ObserveBorrowWait records how long a borrow waited.
func ObserveBorrowWait(d time.Duration) {
	Init()
	poolBorrowWaitSeconds.Observe(d.Seconds())
}

// ObservePoolExhausted increments the exhaustion counter.
func ObservePoolExhausted() {
	Init()
	poolExhaustedTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records a per-host rate limiter wait.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	fetchRateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}
