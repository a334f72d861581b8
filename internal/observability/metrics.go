package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. Record methods are
// nil-safe so components can run without metrics wired.
type Metrics struct {
	// HTTPRequestCounter counts API requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// HTTPRequestDuration measures API request latency in seconds.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// TurnCounter counts conversational turns by outcome.
	// Labels: status (complete|error)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures turn wall time in seconds.
	// Labels: status
	TurnDuration *prometheus.HistogramVec

	// ProviderRequestCounter counts inference requests.
	// Labels: provider, model, status (success|error)
	ProviderRequestCounter *prometheus.CounterVec

	// ProviderRequestDuration measures inference latency in seconds.
	// Labels: provider, model
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderTokens tracks token consumption.
	// Labels: provider, model, type (input|output)
	ProviderTokens *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// RateLimitRejections counts requests refused by the limiter.
	// Labels: window (minute|hour)
	RateLimitRejections *prometheus.CounterVec

	// StoreQueryCounter counts conversation-store queries.
	// Labels: operation, table, status (success|error)
	StoreQueryCounter *prometheus.CounterVec

	// StoreQueryDuration measures store query latency in seconds.
	// Labels: operation, table
	StoreQueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors with reg. The server
// passes nil to register with the default registry; tests pass their own
// registry for isolation.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steward_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "steward_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steward_turns_total",
				Help: "Total number of conversational turns by outcome",
			},
			[]string{"status"},
		),

		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "steward_turn_duration_seconds",
				Help:    "Wall time of conversational turns in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),

		ProviderRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steward_provider_requests_total",
				Help: "Total number of inference requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ProviderRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "steward_provider_request_duration_seconds",
				Help:    "Duration of inference requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		ProviderTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steward_provider_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steward_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "steward_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),

		RateLimitRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steward_rate_limit_rejections_total",
				Help: "Total number of requests refused by the rate limiter",
			},
			[]string{"window"},
		),

		StoreQueryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steward_store_queries_total",
				Help: "Total number of conversation store queries",
			},
			[]string{"operation", "table", "status"},
		),

		StoreQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "steward_store_query_duration_seconds",
				Help:    "Duration of conversation store queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),
	}
}

// RecordHTTPRequest records one handled request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordTurn records one finished turn. Status is complete or error.
func (m *Metrics) RecordTurn(status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TurnCounter.WithLabelValues(status).Inc()
	m.TurnDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordProviderRequest records one inference round trip with its token
// usage. Token counts of zero are not recorded.
func (m *Metrics) RecordProviderRequest(provider, model, status string, durationSeconds float64, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.ProviderRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.ProviderTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.ProviderTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordRateLimitRejection records a request refused by the limiter.
// Window names which quota was exhausted, minute or hour.
func (m *Metrics) RecordRateLimitRejection(window string) {
	if m == nil {
		return
	}
	m.RateLimitRejections.WithLabelValues(window).Inc()
}

// RecordStoreQuery records one conversation store query.
func (m *Metrics) RecordStoreQuery(operation, table, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StoreQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.StoreQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}
