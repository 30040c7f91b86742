package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "certforge"

// Metrics holds the service's Prometheus collectors behind a private registry.
// All record methods are nil-safe so callers can run without metrics wired.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	certificatesSentTotal   prometheus.Counter
	certificatesFailedTotal *prometheus.CounterVec
	retryRequeuedTotal      prometheus.Counter

	renderDuration prometheus.Histogram
	sendDuration   prometheus.Histogram

	dispatcherInflight prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		certificatesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "certificates_sent_total",
			Help:      "Certificates successfully rendered and emailed.",
		}),
		certificatesFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "certificates_failed_total",
			Help:      "Certificates that failed dispatch, by failure reason.",
		}, []string{"reason"}),
		retryRequeuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retry_requeued_total",
			Help:      "FAILED certificates reset to PENDING by retry requests.",
		}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a single certificate PDF.",
			Buckets:   prometheus.DefBuckets,
		}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "send_duration_seconds",
			Help:      "Time spent delivering a single certificate email.",
			Buckets:   prometheus.DefBuckets,
		}),
		dispatcherInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "dispatcher_inflight_runs",
			Help:      "Dispatch runs currently executing in this process.",
		}),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.certificatesSentTotal,
		m.certificatesFailedTotal,
		m.retryRequeuedTotal,
		m.renderDuration,
		m.sendDuration,
		m.dispatcherInflight,
	)

	return m
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordCertificateSent() {
	if m == nil {
		return
	}
	m.certificatesSentTotal.Inc()
}

func (m *Metrics) RecordCertificateFailed(reason string) {
	if m == nil {
		return
	}
	m.certificatesFailedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordRetryRequeued(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.retryRequeuedTotal.Add(float64(count))
}

func (m *Metrics) ObserveRenderDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveSendDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.sendDuration.Observe(d.Seconds())
}

func (m *Metrics) DispatcherRunStarted() {
	if m == nil {
		return
	}
	m.dispatcherInflight.Inc()
}

func (m *Metrics) DispatcherRunFinished() {
	if m == nil {
		return
	}
	m.dispatcherInflight.Dec()
}

// HTTPMiddleware records request counts and latency for every route.
func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			}
		}

		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}

		m.RecordHTTPRequest(c.Method(), path, status, time.Since(start))

		return err
	}
}

// Handler exposes the private registry for a /metrics route.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
