// Package trace implements the trace context carrier and its
// propagation across call, goroutine, and process boundaries.
//
// A SpanContext is immutable: child contexts are derived with ChildOf,
// never mutated in place. The ambient "current context" for a logical
// flow is the context.Context itself - each goroutine chain carries its
// own, so concurrent flows can never observe each other's context.
package trace

import (
	"go.opentelemetry.io/otel/baggage"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// SpanContext carries the identifiers and baggage that tie a causal
// chain of spans together. The zero value is the valid "untraced" state.
type SpanContext struct {
	TraceID      oteltrace.TraceID
	SpanID       oteltrace.SpanID
	ParentSpanID oteltrace.SpanID
	Sampled      bool

	// Remote is true when this context was extracted from an inbound
	// request rather than created in-process.
	Remote bool

	// Baggage carries user-defined key-value data across boundaries.
	// It follows the W3C baggage format on the wire.
	Baggage baggage.Baggage
}

// Empty returns the untraced context.
func Empty() SpanContext {
	return SpanContext{}
}

// IsValid reports whether the context identifies a live trace.
// An invalid context is the "untraced" state, not an error.
func (sc SpanContext) IsValid() bool {
	return sc.TraceID.IsValid() && sc.SpanID.IsValid()
}

// HasParent reports whether this context was derived from another span.
func (sc SpanContext) HasParent() bool {
	return sc.ParentSpanID.IsValid()
}

// NewRoot creates the context for a new trace: fresh trace ID, fresh
// span ID, no parent. Root contexts are sampled.
func NewRoot() SpanContext {
	return SpanContext{
		TraceID: NewTraceID(),
		SpanID:  NewSpanID(),
		Sampled: true,
	}
}

// ChildOf derives a new context from sc: same trace ID and baggage, a
// fresh unique span ID, and sc's span as the parent. Deriving from an
// invalid context starts a new root instead.
func ChildOf(sc SpanContext) SpanContext {
	if !sc.IsValid() {
		return NewRoot()
	}
	return SpanContext{
		TraceID:      sc.TraceID,
		SpanID:       NewSpanID(),
		ParentSpanID: sc.SpanID,
		Sampled:      sc.Sampled,
		Baggage:      sc.Baggage,
	}
}

// WithBaggage returns a copy of sc carrying the given key-value pairs in
// addition to any it already holds. Invalid keys or values are skipped;
// the original context is never modified.
func (sc SpanContext) WithBaggage(pairs ...string) SpanContext {
	bag := sc.Baggage
	for i := 0; i+1 < len(pairs); i += 2 {
		member, err := baggage.NewMember(pairs[i], pairs[i+1])
		if err != nil {
			continue
		}
		next, err := bag.SetMember(member)
		if err != nil {
			continue
		}
		bag = next
	}
	sc.Baggage = bag
	return sc
}

// BaggageValue returns the baggage value for key, or "" when absent.
func (sc SpanContext) BaggageValue(key string) string {
	return sc.Baggage.Member(key).Value()
}
