package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the HTTP surface.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploadsTotal    *prometheus.CounterVec
	chatTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers the service metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragwork_http_requests_total",
			Help: "HTTP requests by path and status code",
		}, []string{"path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ragwork_http_request_duration_seconds",
			Help:    "HTTP request latency by path",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragwork_uploads_total",
			Help: "Document uploads by processing status",
		}, []string{"status"}),
		chatTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragwork_chat_requests_total",
			Help: "Chat requests by mode",
		}, []string{"mode"}),
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration, m.uploadsTotal, m.chatTotal)
	return m
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordUpload counts an upload outcome by its result status.
func (m *Metrics) RecordUpload(status string) {
	m.uploadsTotal.WithLabelValues(status).Inc()
}

// RecordChat counts a chat request by mode.
func (m *Metrics) RecordChat(mode string) {
	m.chatTotal.WithLabelValues(mode).Inc()
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush passes through so SSE handlers keep working behind the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware instruments request counts and latency per route. The route
// template keeps path variables such as session IDs out of the label set.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		path := routeLabel(r)
		m.requestsTotal.WithLabelValues(path, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}
