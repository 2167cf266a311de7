package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "termie"

// Metrics holds all Prometheus metrics. Every recording method is safe to
// call on a nil *Metrics, so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Pty metrics
	PtyBytesRead    prometheus.Counter
	PtyBytesWritten prometheus.Counter
	SessionAlive    prometheus.Gauge

	// Output buffer metrics
	OutputAppended prometheus.Counter
	OutputEvicted  prometheus.Counter
	OutputSize     prometheus.Gauge

	// Render metrics
	FramesRendered prometheus.Counter
	FrameDuration  prometheus.Histogram

	// Classifier metrics
	Classifications   *prometheus.CounterVec
	ClassifierErrors  *prometheus.CounterVec
	ClassifierLatency prometheus.Histogram

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON health endpoint.
type Snapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalErrors    int64   `json:"total_errors"`
	BytesRead      int64   `json:"pty_bytes_read"`
	BytesWritten   int64   `json:"pty_bytes_written"`
	Frames         int64   `json:"frames_rendered"`
	Viewers        int64   `json:"viewers"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	SessionRunning bool    `json:"session_running"`
}

// NewMetrics creates a collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		PtyBytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pty_read_bytes_total",
			Help:      "Bytes read from the pty master",
		}),
		PtyBytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pty_written_bytes_total",
			Help:      "Bytes written to the pty master",
		}),
		SessionAlive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_alive",
			Help:      "1 while the shell is running",
		}),

		OutputAppended: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_appended_bytes_total",
			Help:      "Scanned bytes appended to the output buffer",
		}),
		OutputEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_evicted_bytes_total",
			Help:      "Bytes dropped from the front of the output buffer",
		}),
		OutputSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_buffer_bytes",
			Help:      "Current output buffer size",
		}),

		FramesRendered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rendered_total",
			Help:      "Frames composed and presented",
		}),
		FrameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_render_duration_seconds",
			Help:      "Time to compose one frame",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),

		Classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifications_total",
				Help:      "Classified input lines",
			},
			[]string{"result"},
		),
		ClassifierErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifier_errors_total",
				Help:      "Failed classifier calls",
			},
			[]string{"error_type"},
		),
		ClassifierLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_duration_seconds",
			Help:      "Classifier call duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of connected viewers",
		}),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Process uptime in seconds",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// AddPtyRead counts bytes read from the pty.
func (m *Metrics) AddPtyRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PtyBytesRead.Add(float64(n))
	m.mu.Lock()
	m.snapshot.BytesRead += int64(n)
	m.mu.Unlock()
}

// AddPtyWritten counts bytes written to the pty.
func (m *Metrics) AddPtyWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PtyBytesWritten.Add(float64(n))
	m.mu.Lock()
	m.snapshot.BytesWritten += int64(n)
	m.mu.Unlock()
}

// SetSessionAlive flips the session gauge.
func (m *Metrics) SetSessionAlive(alive bool) {
	if m == nil {
		return
	}
	if alive {
		m.SessionAlive.Set(1)
	} else {
		m.SessionAlive.Set(0)
	}
	m.mu.Lock()
	m.snapshot.SessionRunning = alive
	m.mu.Unlock()
}

// RecordOutput records an append to the output buffer.
func (m *Metrics) RecordOutput(appended, evicted, size int) {
	if m == nil {
		return
	}
	m.OutputAppended.Add(float64(appended))
	if evicted > 0 {
		m.OutputEvicted.Add(float64(evicted))
	}
	m.OutputSize.Set(float64(size))
}

// RecordFrame records one rendered frame.
func (m *Metrics) RecordFrame(duration time.Duration) {
	if m == nil {
		return
	}
	m.FramesRendered.Inc()
	m.FrameDuration.Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.Frames++
	m.mu.Unlock()
}

// RecordClassification records a classifier verdict ("command", "natural").
func (m *Metrics) RecordClassification(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(result).Inc()
	m.ClassifierLatency.Observe(duration.Seconds())
}

// RecordClassifierError records a failed classifier call.
func (m *Metrics) RecordClassifierError(errorType string) {
	if m == nil {
		return
	}
	m.ClassifierErrors.WithLabelValues(errorType).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.Viewers++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.Viewers--
	m.mu.Unlock()
}

// Snapshot returns the current values for JSON consumers.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
