package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RiskTracer wraps an OpenTelemetry tracer with helpers for the span
// shapes the engine emits.
type RiskTracer struct {
	tracer trace.Tracer
}

// NewRiskTracer returns a tracer bound to the named instrumentation scope.
func NewRiskTracer(name string) *RiskTracer {
	return &RiskTracer{tracer: otel.Tracer(name)}
}

// Start starts a plain span.
func (t *RiskTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartHTTPSpan starts a server span for an inbound request.
func (t *RiskTracer) StartHTTPSpan(ctx context.Context, method, route string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
		),
	)
}

// StartEvaluationSpan starts an internal span around a scoring operation.
func (t *RiskTracer) StartEvaluationSpan(ctx context.Context, operation string, attrs map[string]any) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("risk.operation", operation)),
	}
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(convertAttributes(attrs)...))
	}
	return t.tracer.Start(ctx, "risk."+operation, opts...)
}

// StartSignalSpan starts a client span for an upstream signal fetch.
func (t *RiskTracer) StartSignalSpan(ctx context.Context, source, kind string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "signal."+source,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("signal.source", source),
			attribute.String("signal.kind", kind),
		),
	)
}

// EndSpan records err on span when non-nil, sets the status accordingly
// and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddEvent attaches a named event with attributes to the span in ctx.
func AddEvent(ctx context.Context, name string, attrs map[string]any) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(convertAttributes(attrs)...))
}

func convertAttributes(attrs map[string]any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		out = append(out, attributeFrom(k, v))
	}
	return out
}

// attributeFrom maps a loosely typed attribute onto the closest otel
// value type; anything unrecognized is rendered as a string.
func attributeFrom(k string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(k, val)
	case int:
		return attribute.Int(k, val)
	case int64:
		return attribute.Int64(k, val)
	case float64:
		return attribute.Float64(k, val)
	case bool:
		return attribute.Bool(k, val)
	case []string:
		return attribute.StringSlice(k, val)
	default:
		return attribute.String(k, fmt.Sprintf("%v", val))
	}
}
