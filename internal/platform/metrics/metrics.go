package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for capture and export.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry              *prometheus.Registry
	captureStartsTotal    prometheus.Counter
	captureFailuresTotal  *prometheus.CounterVec
	captureLive           prometheus.Gauge
	clipsExportedTotal    prometheus.Counter
	clipExportErrorsTotal prometheus.Counter
	clipExportSeconds     prometheus.Histogram
	deliveryResponses     *prometheus.CounterVec
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		captureStartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipper_capture_starts_total",
			Help: "Total number of capture start requests",
		}),
		captureFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipper_capture_start_failures_total",
			Help: "Capture starts that never became live, by reason",
		}, []string{"reason"}),
		captureLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clipper_capture_live",
			Help: "1 while a capture subprocess is producing the rolling buffer",
		}),
		clipsExportedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipper_clips_exported_total",
			Help: "Total number of clips written successfully",
		}),
		clipExportErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipper_clip_export_errors_total",
			Help: "Total number of failed clip extractions",
		}),
		clipExportSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clipper_clip_export_seconds",
			Help:    "Wall time spent encoding one clip",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		deliveryResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipper_delivery_responses_total",
			Help: "Delivery server responses by asset kind and status class",
		}, []string{"asset", "status"}),
	}

	registry.MustRegister(
		m.captureStartsTotal,
		m.captureFailuresTotal,
		m.captureLive,
		m.clipsExportedTotal,
		m.clipExportErrorsTotal,
		m.clipExportSeconds,
		m.deliveryResponses,
	)

	return m
}

// IncCaptureStarts increments the capture start counter.
func (m *Metrics) IncCaptureStarts() {
	if m == nil {
		return
	}
	m.captureStartsTotal.Inc()
}

// IncCaptureFailures records a start that ended before the buffer went live.
func (m *Metrics) IncCaptureFailures(reason string) {
	if m == nil {
		return
	}
	m.captureFailuresTotal.WithLabelValues(reason).Inc()
}

// SetCaptureLive flips the live gauge.
func (m *Metrics) SetCaptureLive(live bool) {
	if m == nil {
		return
	}
	if live {
		m.captureLive.Set(1)
		return
	}
	m.captureLive.Set(0)
}

// ObserveClipExport records one extraction outcome and its duration.
func (m *Metrics) ObserveClipExport(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.clipExportErrorsTotal.Inc()
		return
	}
	m.clipsExportedTotal.Inc()
	m.clipExportSeconds.Observe(elapsed.Seconds())
}

// ObserveDelivery counts one delivery response.
func (m *Metrics) ObserveDelivery(asset string, code int) {
	if m == nil {
		return
	}
	m.deliveryResponses.WithLabelValues(asset, statusClass(code)).Inc()
}

// Registry exposes the private registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
