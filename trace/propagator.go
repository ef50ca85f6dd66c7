package trace

import "context"

// contextKey is the private key under which the active SpanContext is
// stored. Using context.Context as the flow-local store means each
// goroutine chain has its own current context by construction, and
// "restoring the previous context" is simply using the parent ctx again
// after the scoped call returns - including on error exits.
type contextKey struct{}

// FromContext returns the SpanContext current in ctx. When no span is
// active it returns the empty context, never an error: consumers must
// treat the empty context as the valid untraced state.
func FromContext(ctx context.Context) SpanContext {
	if ctx == nil {
		return Empty()
	}
	if sc, ok := ctx.Value(contextKey{}).(SpanContext); ok {
		return sc
	}
	return Empty()
}

// ContextWith makes sc the current context for everything derived from
// the returned ctx. The caller's own ctx is untouched, which is what
// restores the prior context when the scoped region exits.
func ContextWith(ctx context.Context, sc SpanContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, sc)
}

// Capture snapshots the current context at an asynchronous initiation
// point. The snapshot is a plain value and safe to store with a queued
// task or closure.
func Capture(ctx context.Context) SpanContext {
	return FromContext(ctx)
}

// Resume re-installs a captured context when a continuation runs,
// typically on a different goroutine with a fresh base ctx:
//
//	captured := trace.Capture(ctx)
//	go func() {
//	    ctx := trace.Resume(context.Background(), captured)
//	    worker(ctx)
//	}()
//
// Resuming an invalid (empty) capture yields a ctx with no active
// context, which downstream code already handles as untraced.
func Resume(ctx context.Context, sc SpanContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if !sc.IsValid() {
		return ctx
	}
	return ContextWith(ctx, sc)
}
