package tracing

import (
	"context"
	"os"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func TestGetVersion(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected string
	}{
		{
			name:     "with SERVICE_VERSION set",
			envValue: "v1.2.3",
			expected: "v1.2.3",
		},
		{
			name:     "with SERVICE_VERSION not set",
			envValue: "",
			expected: "dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("SERVICE_VERSION", tt.envValue)
				defer os.Unsetenv("SERVICE_VERSION")
			} else {
				os.Unsetenv("SERVICE_VERSION")
			}

			result := getVersion()
			if result != tt.expected {
				t.Errorf("getVersion() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestGetHostInstanceID(t *testing.T) {
	tests := []struct {
		name        string
		hostnameEnv string
		podNameEnv  string
		expected    string
	}{
		{
			name:        "with HOSTNAME set",
			hostnameEnv: "mail-server-01",
			podNameEnv:  "",
			expected:    "mail-server-01",
		},
		{
			name:        "with POD_NAME set (no HOSTNAME)",
			hostnameEnv: "",
			podNameEnv:  "harbormail-apiserver-abc123",
			expected:    "harbormail-apiserver-abc123",
		},
		{
			name:        "HOSTNAME takes precedence",
			hostnameEnv: "mail-server-01",
			podNameEnv:  "harbormail-apiserver-abc123",
			expected:    "mail-server-01",
		},
		{
			name:        "with neither set",
			hostnameEnv: "",
			podNameEnv:  "",
			expected:    "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("HOSTNAME")
			os.Unsetenv("POD_NAME")

			if tt.hostnameEnv != "" {
				os.Setenv("HOSTNAME", tt.hostnameEnv)
				defer os.Unsetenv("HOSTNAME")
			}
			if tt.podNameEnv != "" {
				os.Setenv("POD_NAME", tt.podNameEnv)
				defer os.Unsetenv("POD_NAME")
			}

			result := getHostInstanceID()
			if result != tt.expected {
				t.Errorf("getHostInstanceID() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestGetOTLPEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected string
	}{
		{
			name:     "with http:// prefix",
			envValue: "http://tempo:4318",
			expected: "tempo:4318",
		},
		{
			name:     "with https:// prefix",
			envValue: "https://tempo:4318",
			expected: "tempo:4318",
		},
		{
			name:     "without protocol prefix",
			envValue: "tempo:4318",
			expected: "tempo:4318",
		},
		{
			name:     "empty environment variable",
			envValue: "",
			expected: "tempo:4318",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", tt.envValue)
				defer os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
			} else {
				os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
			}

			result := getOTLPEndpoint()
			if result != tt.expected {
				t.Errorf("getOTLPEndpoint() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestStartSpan(t *testing.T) {
	tests := []struct {
		name     string
		spanName string
		attrs    []attribute.KeyValue
	}{
		{
			name:     "simple span without attributes",
			spanName: "test-operation",
			attrs:    nil,
		},
		{
			name:     "span with attributes",
			spanName: "queue-acquire",
			attrs: []attribute.KeyValue{
				attribute.String("zone", "default"),
				attribute.String("client", "w-1"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			newCtx, span := StartSpan(ctx, tt.spanName, tt.attrs...)

			if newCtx == nil {
				t.Error("StartSpan() returned nil context")
			}
			if span == nil {
				t.Error("StartSpan() returned nil span")
			}
			if oteltrace.SpanFromContext(newCtx) != span {
				t.Error("StartSpan() span not found in returned context")
			}
			span.End()
		})
	}
}

func TestGetTraceID(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)

	if got := GetTraceID(context.Background()); got != "" {
		t.Errorf("GetTraceID() without span = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "test-span")
	defer span.End()
	traceID := GetTraceID(ctx)
	if traceID == "" {
		t.Error("GetTraceID() returned empty string for context with span")
	}
	if len(traceID) != 32 {
		t.Errorf("GetTraceID() length = %d, want 32", len(traceID))
	}
}

func TestAddSpanEventAndSetSpanError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)

	// Neither call may panic, with or without an active span.
	AddSpanEvent(context.Background(), "no-span")
	SetSpanError(context.Background(), context.Canceled)
	SetSpanError(context.Background(), nil)

	ctx, span := StartSpan(context.Background(), "test-span")
	defer span.End()
	AddSpanEvent(ctx, "lease-resolved", attribute.String("outcome", "released"))
	SetSpanError(ctx, context.DeadlineExceeded)
	SetSpanError(ctx, nil)
}

func TestTraceRoundTripThroughNSQHeaders(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx, span := StartSpan(context.Background(), "test-operation")
	defer span.End()

	originalTraceID := GetTraceID(ctx)
	if originalTraceID == "" {
		t.Fatal("failed to get trace ID from original context")
	}

	headers := PropagateTraceToNSQ(ctx)
	if len(headers) == 0 {
		t.Fatal("PropagateTraceToNSQ() returned empty headers")
	}

	newCtx := ExtractTraceFromNSQ(context.Background(), headers)
	newCtx, childSpan := StartSpan(newCtx, "child-operation")
	defer childSpan.End()

	if extracted := GetTraceID(newCtx); extracted != originalTraceID {
		t.Errorf("trace ID changed during round-trip: original=%s, extracted=%s", originalTraceID, extracted)
	}
}

func TestExtractTraceFromNSQTolerance(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	for _, headers := range []map[string]string{
		nil,
		{},
		{"traceparent": "invalid-trace-context"},
		{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	} {
		if ctx := ExtractTraceFromNSQ(context.Background(), headers); ctx == nil {
			t.Errorf("ExtractTraceFromNSQ(%v) returned nil context", headers)
		}
	}
}

func TestTracerNameConstant(t *testing.T) {
	expected := "github.com/austindbirch/harbor_mail"
	if TracerName != expected {
		t.Errorf("TracerName constant = %q, want %q", TracerName, expected)
	}
}
