// Package metrics exposes Prometheus collectors for the donkey crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	discoveriesTotal           *prometheus.CounterVec
	linksHarvestedTotal        *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	fetchFailuresTotal         *prometheus.CounterVec
	agentStopsTotal            *prometheus.CounterVec
	activeAgents               prometheus.Gauge
	storeBackoffSeconds        prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		discoveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donkey_discoveries_total",
				Help: "Discovery steps, labeled by site, category and result (enqueued, missed, advanced).",
			},
			[]string{"site", "category", "result"},
		)

		linksHarvestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donkey_links_harvested_total",
				Help: "Listing URLs harvested from listing pages.",
			},
			[]string{"site", "category"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donkey_records_total",
				Help: "Extraction steps, labeled by site, category and status.",
			},
			[]string{"site", "category", "status"},
		)

		fetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donkey_fetch_failures_total",
				Help: "Fetch failures, labeled by site and phase (discover, extract).",
			},
			[]string{"site", "phase"},
		)

		agentStopsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donkey_agent_stops_total",
				Help: "Stop sentinels emitted after all categories were exhausted.",
			},
			[]string{"site"},
		)

		activeAgents = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "donkey_active_agents",
				Help: "Number of agents currently draining a frontier.",
			},
		)

		storeBackoffSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "donkey_store_backoff_seconds",
				Help:    "Backoff applied after a failed unit of work.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
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
	})
}

// SanitizeSite sanitizes a URL or domain to a lowercase hostname.
// It returns "unknown" if the input is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveDiscovery records one discovery step.
func ObserveDiscovery(site, category, result string, links int) {
	Init()
	s := SanitizeSite(site)
	discoveriesTotal.WithLabelValues(s, category, result).Inc()
	if links > 0 {
		linksHarvestedTotal.WithLabelValues(s, category).Add(float64(links))
	}
}

// ObserveRecord records one extraction step.
func ObserveRecord(site, category, status string) {
	Init()
	recordsTotal.WithLabelValues(SanitizeSite(site), category, status).Inc()
}

// ObserveFetchFailure increments the fetch failure counter.
func ObserveFetchFailure(site, phase string) {
	Init()
	fetchFailuresTotal.WithLabelValues(SanitizeSite(site), phase).Inc()
}

// ObserveStop counts an emitted stop sentinel.
func ObserveStop(site string) {
	Init()
	agentStopsTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveBackoff records a worker backoff.
func ObserveBackoff(d time.Duration) {
	Init()
	storeBackoffSeconds.Observe(d.Seconds())
}

// IncActiveAgents increments the active agents gauge.
func IncActiveAgents() {
	Init()
	activeAgents.Inc()
}

// DecActiveAgents decrements the active agents gauge.
func DecActiveAgents() {
	Init()
	activeAgents.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
