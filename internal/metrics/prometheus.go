package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Turn metrics
	AgentTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folioagent_turns_total",
			Help: "Total number of agent chat turns",
		},
		[]string{"mode", "status"}, // status: success|unconfigured|llm_error|cancelled
	)

	AgentTurnLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folioagent_turn_latency_seconds",
			Help:    "Agent chat turn latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"mode"},
	)

	AgentConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "folioagent_turn_confidence",
			Help:    "Confidence reported on completed turns",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
	)

	VerifierWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folioagent_verifier_warnings_total",
			Help: "Warnings emitted by the response verifier",
		},
		[]string{"check"}, // check: advice|allocation_sum|valuation_label
	)

	// LLM metrics
	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folioagent_llm_calls_total",
			Help: "Total number of LLM provider calls",
		},
		[]string{"provider", "model", "status"}, // status: success|error
	)

	LLMLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folioagent_llm_latency_seconds",
			Help:    "LLM provider call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "model"},
	)

	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folioagent_llm_tokens_total",
			Help: "Total tokens used by LLM calls",
		},
		[]string{"provider", "model", "type"}, // type: input|output
	)

	// Tool metrics
	ToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folioagent_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"}, // status: success|error
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folioagent_tool_latency_seconds",
			Help:    "Tool execution latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"tool"},
	)

	// Proxy metrics
	ProxyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folioagent_proxy_requests_total",
			Help: "Requests relayed by the gateway",
		},
		[]string{"mode", "code"}, // mode: unary|sse|websocket
	)

	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "folioagent_websocket_connections",
			Help: "Open WebSocket bridge connections",
		},
	)

	StreamEventsForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folioagent_stream_events_forwarded_total",
			Help: "Stream events forwarded to clients",
		},
		[]string{"type"},
	)

	StreamFramesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "folioagent_stream_frames_dropped_total",
			Help: "Malformed upstream SSE frames dropped by the bridge",
		},
	)

	// Audit metrics
	AuditRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folioagent_audit_rows_total",
			Help: "Tool usage rows written to the audit sink",
		},
		[]string{"status"}, // status: success|error|dropped
	)
)

var registerOnce sync.Once

// Init registers all metrics with Prometheus. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(AgentTurns)
		prometheus.MustRegister(AgentTurnLatency)
		prometheus.MustRegister(AgentConfidence)
		prometheus.MustRegister(VerifierWarnings)

		prometheus.MustRegister(LLMCalls)
		prometheus.MustRegister(LLMLatency)
		prometheus.MustRegister(LLMTokens)

		prometheus.MustRegister(ToolExecutions)
		prometheus.MustRegister(ToolLatency)

		prometheus.MustRegister(ProxyRequests)
		prometheus.MustRegister(WebSocketConnections)
		prometheus.MustRegister(StreamEventsForwarded)
		prometheus.MustRegister(StreamFramesDropped)

		prometheus.MustRegister(AuditRows)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordTurn records a finished chat turn
func RecordTurn(mode, status string, latency time.Duration, confidence float64) {
	if mode == "" {
		mode = "fast"
	}
	AgentTurns.WithLabelValues(mode, status).Inc()
	AgentTurnLatency.WithLabelValues(mode).Observe(latency.Seconds())
	if status == "success" {
		AgentConfidence.Observe(confidence)
	}
}

// RecordLLMCall records one provider round trip
func RecordLLMCall(provider, model string, latency time.Duration, inputTokens, outputTokens int, err error) {
	LLMCalls.WithLabelValues(provider, model, status(err)).Inc()
	LLMLatency.WithLabelValues(provider, model).Observe(latency.Seconds())

	if inputTokens > 0 {
		LLMTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordToolExecution records a tool execution
func RecordToolExecution(tool string, latency time.Duration, err error) {
	ToolExecutions.WithLabelValues(tool, status(err)).Inc()
	ToolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

// RecordVerifierWarning counts one verifier finding
func RecordVerifierWarning(check string) {
	VerifierWarnings.WithLabelValues(check).Inc()
}

// RecordProxyRequest records a gateway relay outcome
func RecordProxyRequest(mode string, code int) {
	ProxyRequests.WithLabelValues(mode, strconv.Itoa(code)).Inc()
}

// RecordForwardedEvent counts an event relayed to a WebSocket client
func RecordForwardedEvent(eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	StreamEventsForwarded.WithLabelValues(eventType).Inc()
}

// RecordDroppedFrame counts a malformed SSE frame
func RecordDroppedFrame() {
	StreamFramesDropped.Inc()
}

// RecordAuditRows records the outcome of an audit flush
func RecordAuditRows(n int, err error) {
	AuditRows.WithLabelValues(status(err)).Add(float64(n))
}
