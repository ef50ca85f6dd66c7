package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/optic-dev/optic-go/trace"
)

// Invoker is the unit the interceptor wraps: one call that takes a
// context and reports success or failure. Adapters express a library's
// entry points as Invokers and hand them to Wrap.
type Invoker interface {
	Invoke(ctx context.Context) error
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context) error

func (f InvokerFunc) Invoke(ctx context.Context) error { return f(ctx) }

// NameFunc derives the span name at invocation time. Useful when the
// name depends on request data rather than the wrap site.
type NameFunc func(ctx context.Context) string

// CarrierFunc supplies the inbound carrier holding a serialized remote
// context, when the wrapped call is the entry point of a request that
// crossed a process boundary.
type CarrierFunc func(ctx context.Context) trace.Carrier

// WrapOption customizes a single Wrap call.
type WrapOption func(*wrapOptions)

type wrapOptions struct {
	nameFunc   NameFunc
	carrier    CarrierFunc
	attributes []attribute.KeyValue
}

// WithNameFunc derives the span name per invocation instead of using
// the static name given to Wrap.
func WithNameFunc(fn NameFunc) WrapOption {
	return func(o *wrapOptions) { o.nameFunc = fn }
}

// WithInboundCarrier makes the wrapped call extract a remote parent
// context from the given carrier before deriving its span, so the span
// becomes a child of the remote caller rather than a root.
func WithInboundCarrier(fn CarrierFunc) WrapOption {
	return func(o *wrapOptions) { o.carrier = fn }
}

// WithAttributes attaches static attributes to every span the wrap
// produces.
func WithAttributes(attrs ...attribute.KeyValue) WrapOption {
	return func(o *wrapOptions) { o.attributes = attrs }
}

// Interceptor applies the generic wrap/unwrap mechanism: span on entry,
// outcome and duration on exit, parent linkage through the ambient
// context. It never changes what the wrapped call returns.
type Interceptor struct {
	tracer *Tracer
}

// NewInterceptor creates an interceptor producing spans via tracer.
func NewInterceptor(tracer *Tracer) *Interceptor {
	return &Interceptor{tracer: tracer}
}

// Wrap returns an Invoker that traces target. Wrapping an already
// wrapped Invoker returns it unchanged, so overlapping adapters cannot
// double-count an entry point.
func (i *Interceptor) Wrap(name string, kind oteltrace.SpanKind, target Invoker, opts ...WrapOption) Invoker {
	if target == nil {
		return nil
	}
	if w, ok := target.(*wrappedInvoker); ok {
		return w
	}
	o := &wrapOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return &wrappedInvoker{
		interceptor: i,
		name:        name,
		kind:        kind,
		target:      target,
		opts:        o,
	}
}

// WrapFunc is the function-flavored variant of Wrap.
func (i *Interceptor) WrapFunc(name string, kind oteltrace.SpanKind, target func(ctx context.Context) error, opts ...WrapOption) InvokerFunc {
	wrapped := i.Wrap(name, kind, InvokerFunc(target), opts...)
	return wrapped.Invoke
}

// wrappedInvoker is the idempotency marker: its concrete type tells
// Wrap that a target is already instrumented.
type wrappedInvoker struct {
	interceptor *Interceptor
	name        string
	kind        oteltrace.SpanKind
	target      Invoker
	opts        *wrapOptions
}

func (w *wrappedInvoker) Invoke(ctx context.Context) error {
	parent := trace.FromContext(ctx)
	if w.opts.carrier != nil && !parent.IsValid() {
		if carrier := w.opts.carrier(ctx); carrier != nil {
			parent = trace.Extract(carrier)
		}
	}

	name := w.name
	if w.opts.nameFunc != nil {
		if derived := w.opts.nameFunc(ctx); derived != "" {
			name = derived
		}
	}

	ctx, span := w.interceptor.tracer.StartSpanFrom(ctx, parent, name, w.kind)
	if len(w.opts.attributes) > 0 {
		span.SetAttributes(w.opts.attributes...)
	}

	// Deferred so the span is sealed even when the target panics; the
	// panic itself propagates to the caller untouched.
	defer span.End()

	// The original error is passed through untouched: the interceptor
	// observes outcomes, it never transforms them.
	err := w.target.Invoke(ctx)
	if err != nil {
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}
