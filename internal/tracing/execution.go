package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const executionTracerName = "codecommand-execution"

func executionTracer() trace.Tracer {
	return Tracer(executionTracerName)
}

// TraceSpawn creates a span covering an execution process spawn.
func TraceSpawn(ctx context.Context, attemptID, processID, kind string) (context.Context, trace.Span) {
	ctx, span := executionTracer().Start(ctx, "execution.spawn",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("attempt_id", attemptID),
		attribute.String("process_id", processID),
		attribute.String("kind", kind),
	)
	return ctx, span
}

// TraceSpawnResult records the spawn outcome on its span.
func TraceSpawnResult(span trace.Span, pid int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.Int("pid", pid))
}

// TraceStop creates a span covering a stop escalation.
func TraceStop(ctx context.Context, attemptID, processID string) (context.Context, trace.Span) {
	ctx, span := executionTracer().Start(ctx, "execution.stop",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("attempt_id", attemptID),
		attribute.String("process_id", processID),
	)
	return ctx, span
}
