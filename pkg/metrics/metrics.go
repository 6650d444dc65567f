// Package metrics provides Prometheus metrics for the community rankings service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for latency histograms (seconds).
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithRegistry sets the registry metrics are registered on and served from.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// WithRuntimeCollectors registers the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(m *Manager) {
		m.runtime = true
	}
}

// Manager owns every metric the service exports.
// All recording methods are safe on a nil *Manager.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry
	runtime   bool

	// Leaderboard reads
	leaderboardRequests *prometheus.CounterVec
	leaderboardLatency  *prometheus.HistogramVec
	circleChunks        prometheus.Histogram

	// Cache
	cacheLookups *prometheus.CounterVec

	// Social graph and reputation
	followOps           *prometheus.CounterVec
	reputationRecompute *prometheus.CounterVec

	// Event bus
	eventsPublished *prometheus.CounterVec
	eventsFailed    *prometheus.CounterVec

	// Scheduler
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a metrics manager on its own registry unless
// WithRegistry supplies one.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "rankings",
		buckets:   prometheus.DefBuckets,
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	if m.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m.leaderboardRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "leaderboard",
		Name:      "requests_total",
		Help:      "Leaderboard reads by kind and outcome",
	}, []string{"kind", "outcome"})

	m.leaderboardLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "leaderboard",
		Name:      "latency_seconds",
		Help:      "Leaderboard assembly latency",
		Buckets:   m.buckets,
	}, []string{"kind"})

	m.circleChunks = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "leaderboard",
		Name:      "circle_chunks",
		Help:      "Number of membership-filter chunks per circle leaderboard",
		Buckets:   []float64{1, 2, 3, 5, 10, 20, 50},
	})

	m.cacheLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Leaderboard page cache lookups by result",
	}, []string{"result"})

	m.followOps = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "social",
		Name:      "follow_operations_total",
		Help:      "Follow graph mutations by action and outcome",
	}, []string{"action", "outcome"})

	m.reputationRecompute = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "social",
		Name:      "reputation_recomputes_total",
		Help:      "Reputation recomputations by outcome",
	}, []string{"outcome"})

	m.eventsPublished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Domain events published by type",
	}, []string{"type"})

	m.eventsFailed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "events",
		Name:      "handler_failures_total",
		Help:      "Event handler failures by type",
	}, []string{"type"})

	m.jobRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Background job runs by job and outcome",
	}, []string{"job", "outcome"})

	m.jobDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Background job duration",
		Buckets:   m.buckets,
	}, []string{"job"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status",
	}, []string{"route", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by route",
		Buckets:   m.buckets,
	}, []string{"route"})
}

// Registry returns the registry backing this manager.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLeaderboard records one leaderboard read.
// kind is "global", "circle" or "multi"; outcome is "ok", "cache_hit",
// "partial" or "error".
func (m *Manager) ObserveLeaderboard(kind, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.leaderboardRequests.WithLabelValues(kind, outcome).Inc()
	m.leaderboardLatency.WithLabelValues(kind).Observe(took.Seconds())
}

// ObserveCircleChunks records how many membership chunks a circle read needed.
func (m *Manager) ObserveCircleChunks(n int) {
	if m == nil {
		return
	}
	m.circleChunks.Observe(float64(n))
}

// CacheHit records a page cache hit.
func (m *Manager) CacheHit() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

// CacheMiss records a page cache miss.
func (m *Manager) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// FollowOperation records a follow or unfollow attempt.
func (m *Manager) FollowOperation(action string, err error) {
	if m == nil {
		return
	}
	m.followOps.WithLabelValues(action, outcome(err)).Inc()
}

// ReputationRecomputed records a recompute attempt.
func (m *Manager) ReputationRecomputed(err error) {
	if m == nil {
		return
	}
	m.reputationRecompute.WithLabelValues(outcome(err)).Inc()
}

// EventPublished records a published event.
func (m *Manager) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// EventHandlerFailed records a failed event handler invocation.
func (m *Manager) EventHandlerFailed(eventType string) {
	if m == nil {
		return
	}
	m.eventsFailed.WithLabelValues(eventType).Inc()
}

// ObserveJob records one background job run.
func (m *Manager) ObserveJob(job string, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome(err)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(took.Seconds())
}

// ObserveHTTP records one served HTTP request.
func (m *Manager) ObserveHTTP(route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route).Observe(took.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
