// Package observability provides metrics, logging, and distributed tracing
// for the service.
//
// # Metrics
//
// Prometheus collectors track HTTP requests, conversational turns, inference
// requests and token usage, tool executions, rate-limit rejections, and
// conversation store queries. All record methods are nil-safe so components
// can run with metrics unwired, as they do in tests.
//
//	metrics := observability.NewMetrics(nil)
//	start := time.Now()
//	// ... call the provider ...
//	metrics.RecordProviderRequest("anthropic", model, "success",
//	    time.Since(start).Seconds(), inputTokens, outputTokens)
//
// # Logging
//
// NewLogger builds a slog.Logger whose handler redacts credential material
// (API keys, bearer tokens, JWTs, password assignments) from messages and
// attribute values before they are written. Components receive the
// *slog.Logger directly.
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//
// # Tracing
//
// NewTracer configures OpenTelemetry with an OTLP gRPC exporter. With no
// endpoint configured the tracer is a no-op, so callers never branch on
// whether tracing is enabled.
//
//	tracer, shutdown, err := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "steward",
//	    Endpoint:    "localhost:4317",
//	})
//	defer shutdown(ctx)
package observability
