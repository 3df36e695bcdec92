package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "sprout").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
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

// WithRegistry sets the Prometheus registry. If it is also a
// prometheus.Gatherer, Exposition serves from it.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "sprout",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Sources supplies gateway counters read at scrape time. A nil func
// leaves its metric unregistered.
type Sources struct {
	FramesAccepted   func() uint64
	FramesRejected   func() uint64
	Subscribers      func() int
	StreamConnected  func() bool
	ReadingAge       func() (time.Duration, bool)
	DeviceReconnects func() uint64
	Broadcasts       func() uint64
	Evictions        func() uint64
}

// Metrics holds the HTTP request metrics and the gateway collectors.
type Metrics struct {
	config          MetricsConfig
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics registers the gateway metrics.
//
// Metrics collected (default namespace):
//   - sprout_http_requests_total: Counter of requests by route and status code
//   - sprout_http_request_duration_seconds: Histogram of request duration by route
//   - sprout_frames_accepted_total: Counter of accepted candidates
//   - sprout_frames_rejected_total: Counter of rejected candidates
//   - sprout_subscribers_active: Gauge of registered subscribers
//   - sprout_stream_connected: 1 while the device channel is open
//   - sprout_reading_age_seconds: Age of the current reading, -1 before the first
//   - sprout_device_reconnects_total: Counter of device channel losses
//   - sprout_broadcasts_total: Counter of broadcasts including heartbeats
//   - sprout_subscriber_evictions_total: Counter of subscribers removed on failure
//
// NewMetrics panics if a metric is already registered on the registry, like
// promauto.
func NewMetrics(src Sources, opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	m := &Metrics{
		config: config,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_requests_total",
			Help:        "Total HTTP requests by route and status code",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "code"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route"}),
	}

	counter := func(name, help string, fn func() uint64) {
		if fn == nil {
			return
		}
		factory.NewCounterFunc(m.opts(name, help), func() float64 { return float64(fn()) })
	}
	gauge := func(name, help string, fn func() float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts(m.opts(name, help)), fn)
	}

	counter("frames_accepted_total", "Total candidates accepted", src.FramesAccepted)
	counter("frames_rejected_total", "Total candidates rejected", src.FramesRejected)
	counter("device_reconnects_total", "Total device channel losses", src.DeviceReconnects)
	counter("broadcasts_total", "Total broadcasts including heartbeats", src.Broadcasts)
	counter("subscriber_evictions_total", "Total subscribers removed after a failed or stalled send", src.Evictions)

	if src.Subscribers != nil {
		gauge("subscribers_active", "Number of registered subscribers", func() float64 {
			return float64(src.Subscribers())
		})
	}
	if src.StreamConnected != nil {
		gauge("stream_connected", "1 while the device channel is open", func() float64 {
			if src.StreamConnected() {
				return 1
			}
			return 0
		})
	}
	if src.ReadingAge != nil {
		gauge("reading_age_seconds", "Age of the current reading in seconds, -1 before the first", func() float64 {
			age, ok := src.ReadingAge()
			if !ok {
				return -1
			}
			return age.Seconds()
		})
	}
	return m
}

func (m *Metrics) opts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.config.Namespace,
		Subsystem:   m.config.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.config.ConstLabels,
	}
}

// Handler records request count and duration per chi route pattern.
func (m *Metrics) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)

		next.ServeHTTP(rec, r)

		// The pattern is only complete once routing has finished.
		route := routeLabel(r)
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// Exposition serves the registry in the Prometheus text format.
func (m *Metrics) Exposition() http.Handler {
	gatherer, ok := m.config.Registry.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
