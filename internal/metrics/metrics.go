// Package metrics exposes Prometheus collectors for the HTTP surface and the
// letter endpoints.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "openme"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests, event streams included.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route"},
	)

	rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "rejections_total",
			Help:      "Requests refused by the request guard, by scope and status.",
		},
		[]string{"scope", "status"},
	)

	letterEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "letters",
			Name:      "events_total",
			Help:      "Accepted letter telemetry and CMS events.",
		},
		[]string{"kind"},
	)

	emergencies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emergency",
			Name:      "notifications_total",
			Help:      "Emergency notification attempts by provider and outcome.",
		},
		[]string{"provider", "delivered"},
	)

	maintenanceRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "job_runs_total",
			Help:      "Scheduled maintenance job runs.",
		},
		[]string{"job", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		rejections,
		letterEvents,
		emergencies,
		maintenanceRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP metrics collection. Routes are
// labelled by their chi pattern; long-lived event streams are counted but not
// timed.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		if !strings.HasSuffix(route, "/events") {
			httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		}
	})
}

// RegisterStreams exposes the event stream subscriber count and the number of
// frames dropped for slow subscribers. Registering twice returns an error.
func RegisterStreams(clients func() int, dropped func() uint64) error {
	if err := Registry.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Connected event stream subscribers.",
		},
		func() float64 { return float64(clients()) },
	)); err != nil {
		return err
	}
	return Registry.Register(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_frames_total",
			Help:      "Frames skipped because a subscriber buffer was full.",
		},
		func() float64 { return float64(dropped()) },
	))
}

// RecordRejection counts a request the guard refused.
func RecordRejection(scope string, status int) {
	if scope == "" {
		scope = "none"
	}
	rejections.WithLabelValues(scope, strconv.Itoa(status)).Inc()
}

// RecordLetterEvent counts an accepted letter event such as "opened".
func RecordLetterEvent(kind string) {
	letterEvents.WithLabelValues(kind).Inc()
}

// RecordEmergency counts an emergency notification attempt.
func RecordEmergency(provider string, delivered bool) {
	emergencies.WithLabelValues(provider, strconv.FormatBool(delivered)).Inc()
}

// RecordMaintenance counts a scheduled job run.
func RecordMaintenance(job string, success bool) {
	maintenanceRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
