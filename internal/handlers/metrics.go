package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deltadevelopers/leafsense-api/internal/model"
)

// Metrics owns its registry so several handlers can coexist in tests.
type Metrics struct {
	registry        *prometheus.Registry
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	predictions     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leafsense_http_requests_total",
				Help: "Total number of HTTP requests",
			}, []string{"path", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leafsense_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"path"},
		),
		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leafsense_predictions_total",
				Help: "Predictions served, by engine mode and class",
			}, []string{"mode", "class"},
		),
	}
	m.registry.MustRegister(m.requestCount, m.requestDuration, m.predictions)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// otherLabel replaces label values outside the known set, keeping series
// cardinality fixed no matter what clients send.
const otherLabel = "other"

var knownRoutes = map[string]bool{
	"/health":        true,
	"/predict":       true,
	"/chat":          true,
	"/disease-packs": true,
	"/metrics":       true,
}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

func routeLabel(path string) string {
	if knownRoutes[path] {
		return path
	}
	return otherLabel
}

func methodLabel(method string) string {
	if knownMethods[method] {
		return method
	}
	return otherLabel
}

func (m *Metrics) observeRequest(path, method string, status int, d time.Duration) {
	route := routeLabel(path)
	m.requestCount.WithLabelValues(route, methodLabel(method), strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) observePrediction(mode model.Mode, class string) {
	m.predictions.WithLabelValues(mode.String(), class).Inc()
}
