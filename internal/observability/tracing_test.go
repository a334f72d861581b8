package observability

import (
	"context"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewTracer_NoEndpoint(t *testing.T) {
	tracer, shutdown, err := NewTracer(TraceConfig{
		ServiceName:    "steward-test",
		ServiceVersion: "0.0.1",
		Environment:    "test",
	})
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	if tracer == nil {
		t.Fatal("tracer is nil")
	}

	ctx, span := tracer.Start(context.Background(), "turn")
	if span == nil {
		t.Fatal("span is nil")
	}
	span.End()

	if id := GetTraceID(ctx); id != "" {
		t.Errorf("no-op tracer produced trace ID %q", id)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestNewTracer_DefaultsServiceName(t *testing.T) {
	tracer, shutdown, err := NewTracer(TraceConfig{})
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	defer shutdown(context.Background())

	if tracer.config.ServiceName != "steward" {
		t.Errorf("service name = %q, want steward", tracer.config.ServiceName)
	}
}

func TestTracerStart_NilSafe(t *testing.T) {
	var tracer *Tracer

	ctx, span := tracer.Start(context.Background(), "turn")
	if span == nil {
		t.Fatal("nil tracer returned nil span")
	}
	span.End()

	if ctx == nil {
		t.Fatal("nil tracer returned nil context")
	}
}

func TestTraceHelpers(t *testing.T) {
	tracer, shutdown, err := NewTracer(TraceConfig{ServiceName: "steward-test"})
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	defer shutdown(context.Background())

	ctx := context.Background()

	_, span := tracer.TraceTurn(ctx, 42)
	span.End()

	_, span = tracer.TraceProviderCall(ctx, "anthropic", "claude-sonnet-4-5")
	span.End()

	_, span = tracer.TraceToolExecution(ctx, "create_task")
	span.End()

	_, span = tracer.TraceStoreQuery(ctx, "select", "messages")
	span.End()

	_, span = tracer.TraceHTTPRequest(ctx, "POST", "/api/chat")
	span.End()
}

func TestRecordError(t *testing.T) {
	tracer, shutdown, err := NewTracer(TraceConfig{ServiceName: "steward-test"})
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	defer shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "turn")
	defer span.End()

	RecordError(span, errors.New("provider unavailable"))
	RecordError(span, nil)
	RecordError(nil, errors.New("ignored"))
}

func TestGetTraceID(t *testing.T) {
	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("GetTraceID on empty context = %q, want empty", id)
	}

	// A provider with no exporter still mints real trace IDs.
	provider := sdktrace.NewTracerProvider()
	defer provider.Shutdown(context.Background())

	ctx, span := provider.Tracer("steward-test").Start(context.Background(), "turn")
	defer span.End()

	id := GetTraceID(ctx)
	if len(id) != 32 {
		t.Errorf("trace ID %q has length %d, want 32", id, len(id))
	}
}
