package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/optic-dev/optic-go/trace"
)

// Tracer creates spans bound to the delivery pipeline. A disabled
// tracer hands out non-recording spans so instrumented code paths do
// not need to branch on configuration.
type Tracer struct {
	pipeline *Pipeline
	enabled  bool
}

// NewTracer creates a tracer feeding the given pipeline.
func NewTracer(pipeline *Pipeline, enabled bool) *Tracer {
	return &Tracer{pipeline: pipeline, enabled: enabled}
}

// Enabled reports whether this tracer records spans.
func (t *Tracer) Enabled() bool {
	return t != nil && t.enabled
}

// StartSpan opens a span as a child of the context current in ctx. When
// no context is active the span becomes a new root. The returned ctx
// carries the child context and the span itself; use it for everything
// downstream and call End when the unit of work finishes.
func (t *Tracer) StartSpan(ctx context.Context, name string, kind oteltrace.SpanKind) (context.Context, *Span) {
	return t.StartSpanFrom(ctx, trace.FromContext(ctx), name, kind)
}

// StartSpanFrom opens a span with an explicit parent, used when the
// parent was extracted from an inbound request rather than read from
// the ambient context.
func (t *Tracer) StartSpanFrom(ctx context.Context, parent trace.SpanContext, name string, kind oteltrace.SpanKind) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !t.Enabled() {
		return ctx, &Span{}
	}

	sc := trace.ChildOf(parent)
	span := &Span{
		Context:   sc,
		Name:      name,
		Kind:      kind,
		StartTime: time.Now(),
		pipeline:  t.pipeline,
		recording: sc.Sampled,
	}
	ctx = trace.ContextWith(ctx, sc)
	ctx = contextWithSpan(ctx, span)
	return ctx, span
}

// spanKey stores the active *Span so helpers and hooks can reach it.
type spanKey struct{}

func contextWithSpan(ctx context.Context, s *Span) context.Context {
	return context.WithValue(ctx, spanKey{}, s)
}

// SpanFromContext returns the span active in ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	if s, ok := ctx.Value(spanKey{}).(*Span); ok {
		return s
	}
	return nil
}

// AddEvent adds a named event to the span active in ctx. Safe to call
// when no span is active.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	SpanFromContext(ctx).AddEvent(name, attrs...)
}

// RecordError records an error on the span active in ctx and sets its
// status to error. Safe to call with a nil error or no active span.
func RecordError(ctx context.Context, err error) {
	SpanFromContext(ctx).RecordError(err)
}

// SetAttributes adds attributes to the span active in ctx.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	SpanFromContext(ctx).SetAttributes(attrs...)
}

// SetStatus sets the status of the span active in ctx.
func SetStatus(ctx context.Context, code codes.Code, message string) {
	SpanFromContext(ctx).SetStatus(code, message)
}
