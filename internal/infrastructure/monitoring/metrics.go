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

// Metrics holds the broker's Prometheus metrics. It satisfies the observer
// interfaces of the worker, bindings, broadcast and windows packages.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Worker metrics
	WorkerCalls    *prometheus.CounterVec
	WorkerDuration *prometheus.HistogramVec
	WorkerPending  prometheus.Gauge

	// Command router metrics
	Invocations        *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec

	// Broadcast metrics
	Broadcasts *prometheus.CounterVec

	// Window metrics
	WindowsOpen prometheus.Gauge

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the health endpoint.
type Snapshot struct {
	Uptime        time.Duration `json:"-"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	HTTPRequests  int64         `json:"http_requests"`
	HTTPErrors    int64         `json:"http_errors"`
	WorkerCalls   int64         `json:"worker_calls"`
	WorkerFailed  int64         `json:"worker_failed"`
	WorkerPending int64         `json:"worker_pending"`
	Invocations   int64         `json:"invocations"`
	Broadcasts    int64         `json:"broadcasts"`
	WindowsOpen   int64         `json:"windows_open"`
}

// NewMetrics creates a collector with its own registry, including the Go and
// process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg, startTime: time.Now()}

	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shell_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shell_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	m.WorkerCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shell_worker_calls_total",
			Help: "Total number of worker calls by outcome",
		},
		[]string{"fn", "outcome"},
	)
	m.WorkerDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shell_worker_call_duration_seconds",
			Help:    "Worker call duration in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 90},
		},
		[]string{"fn"},
	)
	m.WorkerPending = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "shell_worker_pending_calls",
			Help: "Number of worker calls awaiting an event",
		},
	)

	m.Invocations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shell_invocations_total",
			Help: "Total number of window commands by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)
	m.InvocationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shell_invocation_duration_seconds",
			Help:    "Window command duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
		},
		[]string{"channel"},
	)

	m.Broadcasts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shell_broadcasts_total",
			Help: "Total number of broadcast deliveries",
		},
		[]string{"path", "target"},
	)

	m.WindowsOpen = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "shell_windows_open",
			Help: "Number of registered windows",
		},
	)

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "shell_uptime_seconds",
			Help: "Controller uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.HTTPRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.HTTPErrors++
	}
	m.mu.Unlock()
}

// RecordWorkerCall records a settled worker call.
func (m *Metrics) RecordWorkerCall(fn, outcome string, duration time.Duration) {
	m.WorkerCalls.WithLabelValues(fn, outcome).Inc()
	m.WorkerDuration.WithLabelValues(fn).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.WorkerCalls++
	if outcome != "ok" {
		m.snapshot.WorkerFailed++
	}
	m.mu.Unlock()
}

// SetWorkerPending sets the number of pending worker calls.
func (m *Metrics) SetWorkerPending(n int) {
	m.WorkerPending.Set(float64(n))
	m.mu.Lock()
	m.snapshot.WorkerPending = int64(n)
	m.mu.Unlock()
}

// RecordInvocation records a dispatched window command.
func (m *Metrics) RecordInvocation(channel, outcome string, duration time.Duration) {
	m.Invocations.WithLabelValues(channel, outcome).Inc()
	m.InvocationDuration.WithLabelValues(channel).Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.Invocations++
	m.mu.Unlock()
}

// RecordBroadcast records one delivery of a broadcast message.
func (m *Metrics) RecordBroadcast(path, target string) {
	m.Broadcasts.WithLabelValues(path, target).Inc()
	m.mu.Lock()
	m.snapshot.Broadcasts++
	m.mu.Unlock()
}

// SetWindowsOpen sets the number of registered windows.
func (m *Metrics) SetWindowsOpen(n int) {
	m.WindowsOpen.Set(float64(n))
	m.mu.Lock()
	m.snapshot.WindowsOpen = int64(n)
	m.mu.Unlock()
}

// Snapshot returns the current values.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()
	s.Uptime = time.Since(m.startTime)
	s.UptimeSeconds = s.Uptime.Seconds()
	return s
}
