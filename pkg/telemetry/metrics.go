package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waweb-dev/waweb/pkg/client"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "waweb").
	Namespace string

	// Subsystem is the metrics subsystem (default: "client").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: a fresh prometheus.NewRegistry()
	Registry *prometheus.Registry
}

// MetricsOption configures the Prometheus collectors.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "waweb",
		Subsystem: "client",
		Buckets:   prometheus.DefBuckets,
	}
}

var connectionStates = []client.ConnectionState{
	client.StateDisconnected,
	client.StateConnecting,
	client.StateConnected,
	client.StateAuthenticating,
	client.StateAuthenticated,
	client.StateDisconnecting,
	client.StateReconnecting,
}

// Metrics records client telemetry in Prometheus collectors. It implements
// client.Observer:
//
//	m := telemetry.NewMetrics()
//	c, _ := client.New(cfg, client.WithObserver(m))
//	http.Handle("/metrics", m.Handler())
//
// Metrics collected (default namespace and subsystem):
//   - waweb_client_frames_sent_total, waweb_client_frames_received_total:
//     frames by kind (text, binary)
//   - waweb_client_frame_bytes_sent_total, waweb_client_frame_bytes_received_total
//   - waweb_client_frames_dropped_total: inbound frames dropped by reason
//   - waweb_client_reconnects_total and waweb_client_reconnect_delay_seconds
//   - waweb_client_request_duration_seconds: by op and status
//   - waweb_client_request_errors_total: by op and error type
//   - waweb_client_pending_requests
//   - waweb_client_connection_state: 1 for the current state, 0 otherwise
//   - waweb_client_state_transitions_total: by from and to
type Metrics struct {
	registry *prometheus.Registry

	framesSent         *prometheus.CounterVec
	framesReceived     *prometheus.CounterVec
	frameBytesSent     *prometheus.CounterVec
	frameBytesReceived *prometheus.CounterVec
	framesDropped      *prometheus.CounterVec
	reconnects         prometheus.Counter
	reconnectDelay     prometheus.Histogram
	requestDuration    *prometheus.HistogramVec
	requestErrors      *prometheus.CounterVec
	pending            prometheus.Gauge
	state              *prometheus.GaugeVec
	transitions        *prometheus.CounterVec
}

var _ client.Observer = (*Metrics)(nil)

// NewMetrics registers the client collectors and returns the observer.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if len(config.Buckets) == 0 {
		config.Buckets = prometheus.DefBuckets
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	m := &Metrics{
		registry:           config.Registry,
		framesSent:         counter("frames_sent_total", "Total frames written to the transport", "kind"),
		framesReceived:     counter("frames_received_total", "Total frames read from the transport", "kind"),
		frameBytesSent:     counter("frame_bytes_sent_total", "Total bytes written to the transport", "kind"),
		frameBytesReceived: counter("frame_bytes_received_total", "Total bytes read from the transport", "kind"),
		framesDropped:      counter("frames_dropped_total", "Inbound frames dropped before dispatch", "reason"),
		requestErrors:      counter("request_errors_total", "Failed tagged requests by error type", "op", "error_type"),
		transitions:        counter("state_transitions_total", "Connection state transitions", "from", "to"),

		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reconnects_total",
			Help:        "Total number of scheduled reconnect attempts",
			ConstLabels: config.ConstLabels,
		}),

		reconnectDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reconnect_delay_seconds",
			Help:        "Backoff delay before reconnect attempts",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0.5, 1, 3, 5, 10, 30, 60, 120},
		}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Round trip time of tagged requests in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"op", "status"}),

		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pending_requests",
			Help:        "Requests waiting for a reply",
			ConstLabels: config.ConstLabels,
		}),

		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connection_state",
			Help:        "Current connection state (1 for the active state)",
			ConstLabels: config.ConstLabels,
		}, []string{"state"}),
	}

	for _, s := range connectionStates {
		m.state.WithLabelValues(s.String()).Set(0)
	}
	m.state.WithLabelValues(client.StateDisconnected.String()).Set(1)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) StateChanged(from, to string) {
	m.state.WithLabelValues(from).Set(0)
	m.state.WithLabelValues(to).Set(1)
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) FrameSent(kind string, size int) {
	m.framesSent.WithLabelValues(kind).Inc()
	m.frameBytesSent.WithLabelValues(kind).Add(float64(size))
}

func (m *Metrics) FrameReceived(kind string, size int) {
	m.framesReceived.WithLabelValues(kind).Inc()
	m.frameBytesReceived.WithLabelValues(kind).Add(float64(size))
}

func (m *Metrics) FrameDropped(reason string) {
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ReconnectScheduled(attempt int, delay time.Duration) {
	m.reconnects.Inc()
	m.reconnectDelay.Observe(delay.Seconds())
}

func (m *Metrics) RequestCompleted(op string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.requestErrors.WithLabelValues(op, categorizeError(err)).Inc()
	}
	m.requestDuration.WithLabelValues(op, status).Observe(d.Seconds())
}

func (m *Metrics) PendingRequests(n int) {
	m.pending.Set(float64(n))
}

// categorizeError maps an error to a low-cardinality label.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, client.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, client.ErrConnectionClosed), errors.Is(err, client.ErrNotConnected):
		return "connection"
	case errors.Is(err, client.ErrNotAuthenticated):
		return "unauthenticated"
	case errors.Is(err, client.ErrMessageRejected), errors.Is(err, client.ErrPairingRejected):
		return "rejected"
	case errors.Is(err, client.ErrDuplicateTag):
		return "duplicate_tag"
	default:
		return "internal"
	}
}
