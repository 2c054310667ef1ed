// Package metrics exposes Prometheus collectors for the capture agent's HTTP
// surface and its scrape/upload collaborators.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	scrapesTotal               *prometheus.CounterVec
	uploadsTotal               *prometheus.CounterVec
	uploadBytesTotal           *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to call
// multiple times.
func Init() {
	once.Do(func() {
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
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)

		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_scrapes_total",
				Help: "Scrape attempts, labeled by scraper and result.",
			},
			[]string{"scraper", "result"},
		)

		uploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_uploads_total",
				Help: "Upload attempts, labeled by uploader and result.",
			},
			[]string{"uploader", "result"},
		)

		uploadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_upload_bytes_total",
				Help: "Bytes handed to an uploader, labeled by uploader.",
			},
			[]string{"uploader"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_rate_limit_delays_seconds",
				Help:    "Histogram of per-domain rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from rawURL, or "unknown".
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

// Handler returns an http.Handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ResultLabel maps an error to the "ok"/"error" label used by the counters.
func ResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveScrape records a scrape attempt.
func ObserveScrape(scraper string, err error) {
	Init()
	scrapesTotal.WithLabelValues(scraper, ResultLabel(err)).Inc()
}

// ObserveUpload records an upload attempt and, on success, its size.
func ObserveUpload(uploader string, bytes int, err error) {
	Init()
	uploadsTotal.WithLabelValues(uploader, ResultLabel(err)).Inc()
	if err == nil && bytes > 0 {
		uploadBytesTotal.WithLabelValues(uploader).Add(float64(bytes))
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
