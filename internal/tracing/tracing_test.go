package tracing

import (
	"context"
	"fmt"
	"testing"
)

func TestEndpointHost(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "strips http prefix",
			input:    "http://localhost:4318",
			expected: "localhost:4318",
		},
		{
			name:     "strips https prefix",
			input:    "https://otel.example.com:4318",
			expected: "otel.example.com:4318",
		},
		{
			name:     "returns unchanged when no scheme",
			input:    "localhost:4318",
			expected: "localhost:4318",
		},
		{
			name:     "handles empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := endpointHost(tt.input)
			if got != tt.expected {
				t.Errorf("endpointHost(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTracer(t *testing.T) {
	// without OTEL_EXPORTER_OTLP_ENDPOINT this is the no-op provider
	tracer := Tracer("test-tracer")
	if tracer == nil {
		t.Error("expected non-nil tracer")
	}
}

func TestTraceSpawn(t *testing.T) {
	ctx := context.Background()

	t.Run("returns non-nil context and span", func(t *testing.T) {
		returnedCtx, span := TraceSpawn(ctx, "att-1", "proc-1", "codingagent")
		if returnedCtx == nil {
			t.Error("expected non-nil context")
		}
		if span == nil {
			t.Error("expected non-nil span")
		}
		TraceSpawnResult(span, 1234, nil)
		span.End()
	})

	t.Run("records spawn failure", func(t *testing.T) {
		_, span := TraceSpawn(ctx, "att-1", "proc-2", "setupscript")
		TraceSpawnResult(span, 0, fmt.Errorf("spawn failed"))
		span.End()
	})
}

func TestTraceStop(t *testing.T) {
	_, span := TraceStop(context.Background(), "att-1", "proc-1")
	if span == nil {
		t.Error("expected non-nil span")
	}
	span.End()
}

func TestShutdown(t *testing.T) {
	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
