// ABOUTME: OpenTelemetry span management around pipeline runs and node executions.
// ABOUTME: Uses the global tracer provider; a no-op manager is the default when tracing is not configured.
package attractor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var tracer = otel.Tracer("attractor")

// SpanManager handles trace span lifecycle for a pipeline run.
type SpanManager interface {
	// StartRunSpan starts a span covering the whole traversal.
	StartRunSpan(ctx context.Context, graphName, runID string) (context.Context, trace.Span)

	// StartNodeSpan starts a child span for one node execution.
	StartNodeSpan(ctx context.Context, nodeID string) (context.Context, trace.Span)

	// EndSpan completes a span, recording the error when non-nil.
	EndSpan(span trace.Span, err error)
}

// otelSpanManager implements SpanManager on the global OTel provider.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager backed by OpenTelemetry. Configure
// the global tracer provider with otel.SetTracerProvider before running.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartRunSpan(ctx context.Context, graphName, runID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "attractor.run",
		trace.WithAttributes(
			attribute.String("graph.name", graphName),
			attribute.String("run.id", runID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartNodeSpan(ctx context.Context, nodeID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "attractor.node."+nodeID,
		trace.WithAttributes(attribute.String("node.id", nodeID)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopSpanManager is the default when no tracing is configured.
type noopSpanManager struct{}

// NoopSpanManager returns a SpanManager that records nothing.
func NoopSpanManager() SpanManager {
	return &noopSpanManager{}
}

var noopTracer = noop.NewTracerProvider().Tracer("attractor")

func (noopSpanManager) StartRunSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return noopTracer.Start(ctx, "noop")
}

func (noopSpanManager) StartNodeSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return noopTracer.Start(ctx, "noop")
}

func (noopSpanManager) EndSpan(trace.Span, error) {}
