package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the tuner control service.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	droppedBytesTotal  prometheus.Counter
	scansStartedTotal  prometheus.Counter
	channelsFoundTotal prometheus.Counter
	bufferFillBytes    prometheus.Gauge
	scanProgress       prometheus.Gauge
}

// New creates and registers Prometheus metrics for the tuner core.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tuner_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tuner_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	droppedBytesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tuner_buffer_dropped_bytes_total",
		Help: "Bytes discarded because the stream ring buffer was full",
	})
	scansStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tuner_scans_started_total",
		Help: "Total number of channel scans started",
	})
	channelsFoundTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tuner_channels_found_total",
		Help: "Total number of virtual channels discovered across all scans",
	})
	bufferFillBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tuner_buffer_fill_bytes",
		Help: "Bytes currently buffered between the poll loop and the decoder",
	})
	scanProgress := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tuner_scan_progress_ratio",
		Help: "Progress of the running channel scan, 0.0 to 1.0 (advisory)",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		droppedBytesTotal,
		scansStartedTotal,
		channelsFoundTotal,
		bufferFillBytes,
		scanProgress,
	)

	return &Metrics{
		registry:           registry,
		requestsTotal:      requestsTotal,
		errorsTotal:        errorsTotal,
		droppedBytesTotal:  droppedBytesTotal,
		scansStartedTotal:  scansStartedTotal,
		channelsFoundTotal: channelsFoundTotal,
		bufferFillBytes:    bufferFillBytes,
		scanProgress:       scanProgress,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// AddDroppedBytes records bytes truncated by a ring buffer write.
func (m *Metrics) AddDroppedBytes(n int) {
	m.droppedBytesTotal.Add(float64(n))
}

// IncScansStarted increments the scan counter.
func (m *Metrics) IncScansStarted() {
	m.scansStartedTotal.Inc()
}

// AddChannelsFound records channels discovered by a scan step.
func (m *Metrics) AddChannelsFound(n int) {
	m.channelsFoundTotal.Add(float64(n))
}

// SetBufferFill sets the current buffered byte count gauge.
func (m *Metrics) SetBufferFill(n int) {
	m.bufferFillBytes.Set(float64(n))
}

// SetScanProgress sets the advisory scan progress gauge (0..1).
func (m *Metrics) SetScanProgress(ratio float64) {
	m.scanProgress.Set(ratio)
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. buffer fill).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
