// Package metrics provides Prometheus metrics for the laboratory backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry every metric of this service is registered on.
var Registry = prometheus.NewRegistry()

var (
	AdmissionCodesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_codes_issued_total",
			Help: "Total admission codes issued",
		},
		[]string{"sequencer"},
	)

	AdmissionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "admission_conflicts_total",
		Help: "Admissions rejected because the computed code already existed",
	})

	AdmissionOverflows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "admission_overflow_total",
		Help: "Admissions rejected because the monthly sequence was exhausted",
	})

	AdmissionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "admission_generation_duration_seconds",
		Help:    "Time spent inside the admission critical section",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		AdmissionCodesIssued,
		AdmissionConflicts,
		AdmissionOverflows,
		AdmissionDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// RecordHTTPRequest records metrics for an HTTP request
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// Handler returns the Prometheus HTTP handler for Registry
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
