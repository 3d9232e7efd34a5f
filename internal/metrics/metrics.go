// Package metrics exposes Prometheus collectors for the HTTP layer, the
// diagnosis pipeline and the rating engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agroc"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
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
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "diagnosis",
			Name:      "predictions_total",
			Help:      "Predictions stored, by outcome.",
		},
		[]string{"outcome"},
	)

	inferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "diagnosis",
			Name:      "inference_duration_seconds",
			Help:      "Round trip time of calls to the inference service.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"endpoint", "result"},
	)

	ratingActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rating",
			Name:      "actions_total",
			Help:      "Rating engine operations, by action.",
		},
		[]string{"action"},
	)

	reconcileRepairs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rating",
			Name:      "reconcile_repairs_total",
			Help:      "Solutions whose cached rating had drifted and was rewritten.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		predictions,
		inferenceDuration,
		ratingActions,
		reconcileRepairs,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RequestStarted tracks an in-flight request and returns the function that
// records its completion.
func RequestStarted(method string) func(route string, status int) {
	start := time.Now()
	httpInFlight.Inc()
	return func(route string, status int) {
		httpInFlight.Dec()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// RecordPrediction counts a stored prediction.
func RecordPrediction(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	predictions.WithLabelValues(outcome).Inc()
}

// RecordInference records one call to the inference service.
func RecordInference(endpoint string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	inferenceDuration.WithLabelValues(endpoint, result).Observe(duration.Seconds())
}

// RecordRatingAction counts a rating engine operation.
func RecordRatingAction(action string) {
	ratingActions.WithLabelValues(action).Inc()
}

// RecordReconcileRepair counts a solution rewritten by reconciliation.
func RecordReconcileRepair() {
	reconcileRepairs.Inc()
}

// entityCollector reports record counts per entity at scrape time.
type entityCollector struct {
	desc  *prometheus.Desc
	stats func() (map[string]int64, error)
}

func (c *entityCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *entityCollector) Collect(ch chan<- prometheus.Metric) {
	stats, err := c.stats()
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.desc, err)
		return
	}
	for entity, n := range stats {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), entity)
	}
}

// RegisterEntityCounts exposes per-entity record counts from stats.
func RegisterEntityCounts(stats func() (map[string]int64, error)) error {
	return Registry.Register(&entityCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "records"),
			"Number of stored records per entity.",
			[]string{"entity"}, nil,
		),
		stats: stats,
	})
}
