package monitoring

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trafficreplay"

// Stream outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeSendError = "send_error"
	OutcomeRejected  = "rejected"
)

var (
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions held in the registry",
		},
	)

	sessionsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions created",
		},
	)

	sessionsEvictedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Total number of sessions evicted",
		},
		[]string{"reason"}, // reason: ttl, capacity, explicit
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of frame streams currently delivering",
		},
	)

	streamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of stream invocations by outcome",
		},
		[]string{"outcome"},
	)

	framesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of simulation frames handed to a transport",
		},
		[]string{"transport"},
	)

	frameSendSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_send_seconds",
			Help:      "Time spent handing one frame to the transport",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	wsConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections_active",
			Help:      "Number of open WebSocket connections",
		},
	)

	wsDroppedMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_dropped_messages_total",
			Help:      "Messages not queued because the connection's send queue was full or closed",
		},
	)

	allMetrics = []prometheus.Collector{
		sessionsActive,
		sessionsCreatedTotal,
		sessionsEvictedTotal,
		streamsActive,
		streamsTotal,
		framesSentTotal,
		frameSendSeconds,
		wsConnectionsActive,
		wsDroppedMessagesTotal,
	}
)

var (
	registryOnce sync.Once
	registry     *prometheus.Registry
)

// Registry returns the process registry holding the replay metrics and the
// Go runtime collectors.
func Registry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(allMetrics...)
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}

// SetSessionsActive records the registry size.
func SetSessionsActive(n int) { sessionsActive.Set(float64(n)) }

// RecordSessionCreated counts a new session.
func RecordSessionCreated() { sessionsCreatedTotal.Inc() }

// RecordSessionEvicted counts an eviction by reason.
func RecordSessionEvicted(reason string) { sessionsEvictedTotal.WithLabelValues(reason).Inc() }

// StreamStarted increments the active stream gauge.
func StreamStarted() { streamsActive.Inc() }

// StreamFinished decrements the active stream gauge and counts the outcome.
func StreamFinished(outcome string) {
	streamsActive.Dec()
	streamsTotal.WithLabelValues(outcome).Inc()
}

// RecordStreamRejected counts a start request that never began delivery.
func RecordStreamRejected() { streamsTotal.WithLabelValues(OutcomeRejected).Inc() }

// RecordFrameSent counts one delivered frame and its send latency.
func RecordFrameSent(transport string, seconds float64) {
	framesSentTotal.WithLabelValues(transport).Inc()
	frameSendSeconds.Observe(seconds)
}

// WSConnectionOpened and WSConnectionClosed track open WebSocket connections.
func WSConnectionOpened() { wsConnectionsActive.Inc() }
func WSConnectionClosed() { wsConnectionsActive.Dec() }

// RecordWSDropped counts a message that could not be queued.
func RecordWSDropped() { wsDroppedMessagesTotal.Inc() }
