package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the pipeline. Following the
// explicit dependency injection pattern, this struct is passed to every
// component that records metrics; a nil *Metrics disables recording.
type Metrics struct {
	// Ingestion
	messagesReceivedTotal *prometheus.CounterVec
	messagesRejectedTotal *prometheus.CounterVec
	recordsEmittedTotal   *prometheus.CounterVec

	// Queue / flush
	queueDepth      prometheus.Gauge
	queueTrimsTotal prometheus.Counter
	flushesTotal    prometheus.Counter
	refiltersTotal  prometheus.Counter

	// Session lifecycle
	reconnectsTotal *prometheus.CounterVec
	sessionStatus   *prometheus.GaugeVec
	handshakesTotal *prometheus.CounterVec

	// EVM secondary fetches
	throttleDropsTotal     *prometheus.CounterVec
	secondaryFetchDuration *prometheus.HistogramVec

	// Egress
	sseActiveConnections prometheus.Gauge
	sseEventsSent        prometheus.Counter
	natsPublishedTotal   *prometheus.CounterVec

	// HTTP
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		messagesReceivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whaleflow_messages_received_total",
				Help: "Raw websocket messages received by network",
			},
			[]string{"network"},
		),
		messagesRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whaleflow_messages_rejected_total",
				Help: "Messages dropped during normalization or admission",
			},
			[]string{"network", "reason"},
		),
		recordsEmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whaleflow_records_emitted_total",
				Help: "Canonical records admitted to the queue",
			},
			[]string{"network", "channel"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "whaleflow_queue_depth",
				Help: "Current number of queued records awaiting flush",
			},
		),
		queueTrimsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "whaleflow_queue_trims_total",
				Help: "Records discarded by queue overflow trimming",
			},
		),
		flushesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "whaleflow_flushes_total",
				Help: "Records promoted from the queue to the visible window",
			},
		),
		refiltersTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "whaleflow_refilters_total",
				Help: "Retroactive filter passes triggered by control changes",
			},
		),
		reconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whaleflow_reconnects_total",
				Help: "Reconnect attempts by network",
			},
			[]string{"network"},
		),
		sessionStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "whaleflow_session_status",
				Help: "Session state (1 for the current state, 0 otherwise)",
			},
			[]string{"network", "status"},
		),
		handshakesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whaleflow_handshakes_total",
				Help: "Successful subscription handshakes by network",
			},
			[]string{"network"},
		),
		throttleDropsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whaleflow_throttle_drops_total",
				Help: "Block headers dropped by the secondary-request limiter",
			},
			[]string{"network", "reason"},
		),
		secondaryFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whaleflow_secondary_fetch_duration_seconds",
				Help:    "Duration of secondary block fetches",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"network", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "whaleflow_sse_active_connections",
				Help: "Currently connected SSE clients",
			},
		),
		sseEventsSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "whaleflow_sse_events_sent_total",
				Help: "Record events written to SSE clients",
			},
		),
		natsPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whaleflow_nats_published_total",
				Help: "Records published to NATS by network and status",
			},
			[]string{"network", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whaleflow_http_request_duration_seconds",
				Help:    "HTTP request duration by handler",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"handler", "method"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whaleflow_http_requests_total",
				Help: "HTTP requests by handler, method and status code",
			},
			[]string{"handler", "method", "status"},
		),
	}
}

func (m *Metrics) RecordMessageReceived(network string) {
	if m == nil {
		return
	}
	m.messagesReceivedTotal.WithLabelValues(network).Inc()
}

func (m *Metrics) RecordMessageRejected(network, reason string) {
	if m == nil {
		return
	}
	m.messagesRejectedTotal.WithLabelValues(network, reason).Inc()
}

func (m *Metrics) RecordRecordEmitted(network, channel string) {
	if m == nil {
		return
	}
	m.recordsEmittedTotal.WithLabelValues(network, channel).Inc()
}

func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) RecordQueueTrim(n int) {
	if m == nil {
		return
	}
	m.queueTrimsTotal.Add(float64(n))
}

func (m *Metrics) RecordFlush() {
	if m == nil {
		return
	}
	m.flushesTotal.Inc()
}

func (m *Metrics) RecordRefilter() {
	if m == nil {
		return
	}
	m.refiltersTotal.Inc()
}

func (m *Metrics) RecordReconnect(network string) {
	if m == nil {
		return
	}
	m.reconnectsTotal.WithLabelValues(network).Inc()
}

// SetSessionStatus marks the session's current state, clearing the previous
// state's gauge when prev is non-empty.
func (m *Metrics) SetSessionStatus(network, prev, current string) {
	if m == nil {
		return
	}
	if prev != "" && prev != current {
		m.sessionStatus.WithLabelValues(network, prev).Set(0)
	}
	m.sessionStatus.WithLabelValues(network, current).Set(1)
}

func (m *Metrics) RecordHandshake(network string) {
	if m == nil {
		return
	}
	m.handshakesTotal.WithLabelValues(network).Inc()
}

func (m *Metrics) RecordThrottleDrop(network, reason string) {
	if m == nil {
		return
	}
	m.throttleDropsTotal.WithLabelValues(network, reason).Inc()
}

func (m *Metrics) RecordSecondaryFetch(network, status string, seconds float64) {
	if m == nil {
		return
	}
	m.secondaryFetchDuration.WithLabelValues(network, status).Observe(seconds)
}

func (m *Metrics) SSEConnectionOpened() {
	if m == nil {
		return
	}
	m.sseActiveConnections.Inc()
}

func (m *Metrics) SSEConnectionClosed() {
	if m == nil {
		return
	}
	m.sseActiveConnections.Dec()
}

func (m *Metrics) RecordSSEEvent() {
	if m == nil {
		return
	}
	m.sseEventsSent.Inc()
}

func (m *Metrics) RecordNATSPublish(network, status string) {
	if m == nil {
		return
	}
	m.natsPublishedTotal.WithLabelValues(network, status).Inc()
}

func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestDuration.WithLabelValues(handler, method).Observe(seconds)
	m.httpRequestsTotal.WithLabelValues(handler, method, statusString(statusCode)).Inc()
}

func statusString(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
