// Package metrics provides Prometheus metrics for the duel display service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the duel service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Match orchestration
	phaseTransitions        *prometheus.CounterVec
	currentPhase            prometheus.Gauge
	currentRound            prometheus.Gauge
	notificationsSuppressed *prometheus.CounterVec
	timerFires              *prometheus.CounterVec
	timerDeferred           *prometheus.CounterVec
	timerDiscarded          *prometheus.CounterVec
	staleTimerDrops         prometheus.Counter
	roundOutcomes           *prometheus.CounterVec
	matchOutcomes           *prometheus.CounterVec
	leaderboardRotations    *prometheus.CounterVec

	// Telemetry
	telemetryErrors  *prometheus.CounterVec
	telemetryLatency *prometheus.HistogramVec
	sampleValue      *prometheus.GaugeVec

	// Ledger
	ledgerCommits *prometheus.CounterVec
	ledgerLatency prometheus.Histogram

	// Inbox (event loop queue)
	inboxSize          prometheus.Gauge
	inboxCapacity      prometheus.Gauge
	inboxEnqueueErrors prometheus.Counter
	guardEntries       prometheus.Gauge

	// HTTP and display feed
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec
	feedClients         prometheus.Gauge
	feedDropped         prometheus.Counter

	// Errors by component
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "duel",
		subsystem:        "display",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.phaseTransitions = m.counterVec("phase_transitions_total", "Phases entered by the state machine", "status")
	m.currentPhase = m.gauge("current_phase", "Ordinal of the current match phase (0 = waiting, 7 = finished, -1 = no match)")
	m.currentRound = m.gauge("current_round", "Index of the round currently selected")
	m.notificationsSuppressed = m.counterVec("notifications_suppressed_total", "Event store notifications ignored by the last-seen guard", "reason")
	m.timerFires = m.counterVec("timer_fires_total", "Phase timers that fired", "kind")
	m.timerDeferred = m.counterVec("timer_deferred_total", "Timer callbacks retried because the inbox was full", "kind")
	m.timerDiscarded = m.counterVec("timer_discarded_total", "Timer callbacks dropped because the inbox was closed", "kind")
	m.staleTimerDrops = m.counter("stale_timer_drops_total", "Timer callbacks discarded because their phase had already ended")
	m.roundOutcomes = m.counterVec("round_outcomes_total", "Round winners", "round", "winner")
	m.matchOutcomes = m.counterVec("match_outcomes_total", "Match winners", "winner")
	m.leaderboardRotations = m.counterVec("leaderboard_rotations_total", "Leaderboard views loaded by metric", "metric")

	m.telemetryErrors = m.counterVec("telemetry_errors_total", "Telemetry failures by operation", "op")
	m.telemetryLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "telemetry_latency_milliseconds",
		Help:        "Telemetry call latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"op"})
	m.sampleValue = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "sample_value",
		Help:        "Last sampled score magnitude per band",
		ConstLabels: m.customLabels,
	}, []string{"band"})

	m.ledgerCommits = m.counterVec("ledger_commits_total", "Ledger commits by kind and outcome", "kind", "outcome")
	m.ledgerLatency = m.histogram("ledger_latency_milliseconds", "Ledger call latency in milliseconds")

	m.inboxSize = m.gauge("inbox_size", "Messages waiting in the state machine inbox")
	m.inboxCapacity = m.gauge("inbox_capacity", "Capacity of the state machine inbox")
	m.inboxEnqueueErrors = m.counter("inbox_enqueue_errors_total", "Messages rejected by the state machine inbox")
	m.guardEntries = m.gauge("guard_entries", "One-shot effect keys currently remembered")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")
	m.feedClients = m.gauge("feed_clients", "Connected display feed clients")
	m.feedDropped = m.counter("feed_dropped_total", "Display frames dropped for slow feed clients")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds")
}

// Match Metrics Functions.

// RecordPhaseTransition counts a phase entry and updates the phase gauge.
func RecordPhaseTransition(status string, ordinal int) {
	globalManager.phaseTransitions.WithLabelValues(status).Inc()
	globalManager.currentPhase.Set(float64(ordinal))
}

// UpdateCurrentRound sets the current round gauge.
func UpdateCurrentRound(index int) {
	globalManager.currentRound.Set(float64(index))
}

// RecordNotificationSuppressed counts an ignored store notification.
func RecordNotificationSuppressed(reason string) {
	globalManager.notificationsSuppressed.WithLabelValues(reason).Inc()
}

// RecordTimerFire counts a timer that fired into its live phase.
func RecordTimerFire(kind string) {
	globalManager.timerFires.WithLabelValues(kind).Inc()
}

// RecordTimerDeferred counts a timer callback that found the inbox full.
func RecordTimerDeferred(kind string) {
	globalManager.timerDeferred.WithLabelValues(kind).Inc()
}

// RecordTimerDiscarded counts a timer callback that found the inbox closed.
func RecordTimerDiscarded(kind string) {
	globalManager.timerDiscarded.WithLabelValues(kind).Inc()
}

// RecordStaleTimerDrop counts a timer callback discarded after cancellation.
func RecordStaleTimerDrop() {
	globalManager.staleTimerDrops.Inc()
}

// RecordRoundOutcome counts a round winner.
func RecordRoundOutcome(round, winner string) {
	globalManager.roundOutcomes.WithLabelValues(round, winner).Inc()
}

// RecordMatchOutcome counts a match winner.
func RecordMatchOutcome(winner string) {
	globalManager.matchOutcomes.WithLabelValues(winner).Inc()
}

// RecordLeaderboardRotation counts a leaderboard view load.
func RecordLeaderboardRotation(metric string) {
	globalManager.leaderboardRotations.WithLabelValues(metric).Inc()
}

// Telemetry Metrics Functions.

// RecordTelemetryError counts a telemetry failure for op.
func RecordTelemetryError(op string) {
	globalManager.telemetryErrors.WithLabelValues(op).Inc()
}

// RecordTelemetryLatency observes the latency of a telemetry call.
func RecordTelemetryLatency(op string, latencyMs float64) {
	globalManager.telemetryLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateSampleValue sets the last sampled magnitude for a band.
func UpdateSampleValue(band string, value int) {
	globalManager.sampleValue.WithLabelValues(band).Set(float64(value))
}

// Ledger Metrics Functions.

// RecordLedgerCommit counts a ledger commit with its outcome (ok, error, skipped).
func RecordLedgerCommit(kind, outcome string) {
	globalManager.ledgerCommits.WithLabelValues(kind, outcome).Inc()
}

// RecordLedgerLatency observes the latency of a ledger call.
func RecordLedgerLatency(latencyMs float64) {
	globalManager.ledgerLatency.Observe(latencyMs)
}

// Inbox Metrics Functions.

// UpdateInboxSize sets the number of queued messages.
func UpdateInboxSize(size int) {
	globalManager.inboxSize.Set(float64(size))
}

// UpdateInboxCapacity sets the inbox capacity.
func UpdateInboxCapacity(capacity int) {
	globalManager.inboxCapacity.Set(float64(capacity))
}

// RecordInboxEnqueueError counts a rejected inbox message.
func RecordInboxEnqueueError() {
	globalManager.inboxEnqueueErrors.Inc()
}

// UpdateGuardEntries sets the number of remembered one-shot keys.
func UpdateGuardEntries(count int64) {
	globalManager.guardEntries.Set(float64(count))
}

// HTTP and Feed Metrics Functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateFeedClients sets the number of connected feed clients.
func UpdateFeedClients(count int) {
	globalManager.feedClients.Set(float64(count))
}

// RecordFeedDropped counts a frame dropped for a slow client.
func RecordFeedDropped() {
	globalManager.feedDropped.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
