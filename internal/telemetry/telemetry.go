// Package telemetry exposes Prometheus collectors for the tariff agent.
package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal          *prometheus.CounterVec
	apiRequestDurationSeconds *prometheus.HistogramVec
	tokenRefreshesTotal       *prometheus.CounterVec
	refreshQueueWaitsTotal    prometheus.Counter
	trackingClicksTotal       prometheus.Counter
	trackingPageVisitsTotal   prometheus.Counter
	sessionFlushesTotal       *prometheus.CounterVec
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tariff_agent_api_requests_total",
				Help: "Total requests issued against the ISP-Compare API, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		apiRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tariff_agent_api_request_duration_seconds",
				Help:    "Histogram of upstream API request latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method"},
		)

		tokenRefreshesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tariff_agent_token_refreshes_total",
				Help: "Total credential refresh attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		refreshQueueWaitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tariff_agent_refresh_queue_waits_total",
				Help: "Requests queued behind an in-flight credential refresh.",
			},
		)

		trackingClicksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tariff_agent_tracking_clicks_total",
				Help: "Click events recorded into the active session.",
			},
		)

		trackingPageVisitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tariff_agent_tracking_page_visits_total",
				Help: "Page visits recorded into the active session.",
			},
		)

		sessionFlushesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tariff_agent_session_flushes_total",
				Help: "Completed-session submissions to the collector, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tariff_agent_http_requests_total",
				Help: "Total requests served by the local agent API, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tariff_agent_http_request_duration_seconds",
				Help:    "Histogram of local agent API latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAPIRequest records one upstream API request outcome.
func ObserveAPIRequest(method string, code int, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	apiRequestDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveTokenRefresh records one credential refresh attempt.
func ObserveTokenRefresh(outcome string) {
	tokenRefreshesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRefreshQueueWait counts a request parked behind a refresh.
func ObserveRefreshQueueWait() {
	refreshQueueWaitsTotal.Inc()
}

// ObserveClick counts one recorded click event.
func ObserveClick() {
	trackingClicksTotal.Inc()
}

// ObservePageVisit counts one recorded page visit.
func ObservePageVisit() {
	trackingPageVisitsTotal.Inc()
}

// ObserveSessionFlush records one collector submission attempt.
func ObserveSessionFlush(outcome string) {
	sessionFlushesTotal.WithLabelValues(outcome).Inc()
}

// Middleware records local agent HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	Init()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
