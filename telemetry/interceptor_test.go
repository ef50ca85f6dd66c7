package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/optic-dev/optic-go/trace"
)

func newTestInterceptor(t *testing.T) (*Interceptor, *Pipeline, *captureExporter) {
	t.Helper()
	pipeline, exporter := newTestPipeline(testConfig())
	tracer := NewTracer(pipeline, true)
	return NewInterceptor(tracer), pipeline, exporter
}

func TestWrapSuccess(t *testing.T) {
	interceptor, pipeline, exporter := newTestInterceptor(t)

	var sawContext bool
	wrapped := interceptor.WrapFunc("charge", oteltrace.SpanKindInternal, func(ctx context.Context) error {
		sawContext = trace.FromContext(ctx).IsValid()
		return nil
	})

	require.NoError(t, wrapped(context.Background()))
	assert.True(t, sawContext, "target must run inside the span's scope")

	require.NoError(t, pipeline.Shutdown(context.Background()))
	spans := exporter.spans()
	require.Len(t, spans, 1)
	assert.Equal(t, "charge", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].StatusCode)
	assert.False(t, spans[0].EndTime.Before(spans[0].StartTime))
}

func TestWrapErrorPassthrough(t *testing.T) {
	interceptor, pipeline, exporter := newTestInterceptor(t)

	sentinel := errors.New("card declined")
	wrapped := interceptor.WrapFunc("charge", oteltrace.SpanKindInternal, func(ctx context.Context) error {
		return sentinel
	})

	err := wrapped(context.Background())
	// The original error comes back unchanged - not wrapped, not replaced.
	assert.Same(t, sentinel, err)

	require.NoError(t, pipeline.Shutdown(context.Background()))
	spans := exporter.spans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].StatusCode)
	require.NotEmpty(t, spans[0].Events)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
}

func TestWrapIdempotent(t *testing.T) {
	interceptor, pipeline, exporter := newTestInterceptor(t)

	inner := interceptor.Wrap("op", oteltrace.SpanKindInternal, InvokerFunc(func(ctx context.Context) error {
		return nil
	}))
	outer := interceptor.Wrap("op", oteltrace.SpanKindInternal, inner)

	// Re-wrapping is a no-op: same Invoker, and one span per call.
	assert.Same(t, inner, outer)
	require.NoError(t, outer.Invoke(context.Background()))

	require.NoError(t, pipeline.Shutdown(context.Background()))
	assert.Len(t, exporter.spans(), 1)
}

func TestWrapNesting(t *testing.T) {
	interceptor, pipeline, exporter := newTestInterceptor(t)

	child := interceptor.WrapFunc("inner", oteltrace.SpanKindClient, func(ctx context.Context) error {
		return nil
	})
	parent := interceptor.WrapFunc("outer", oteltrace.SpanKindServer, func(ctx context.Context) error {
		return child(ctx)
	})

	require.NoError(t, parent(context.Background()))
	require.NoError(t, pipeline.Shutdown(context.Background()))

	spans := exporter.spans()
	require.Len(t, spans, 2)
	byName := map[string]*Span{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	inner, outer := byName["inner"], byName["outer"]
	require.NotNil(t, inner)
	require.NotNil(t, outer)
	assert.Equal(t, outer.Context.TraceID, inner.Context.TraceID)
	assert.Equal(t, outer.Context.SpanID, inner.Context.ParentSpanID)
}

func TestWrapRemoteParentExtraction(t *testing.T) {
	interceptor, pipeline, exporter := newTestInterceptor(t)

	remote := trace.NewRoot()
	carrier := trace.MapCarrier{}
	trace.Inject(remote, carrier)

	wrapped := interceptor.WrapFunc("handle", oteltrace.SpanKindServer,
		func(ctx context.Context) error { return nil },
		WithInboundCarrier(func(ctx context.Context) trace.Carrier { return carrier }),
	)
	require.NoError(t, wrapped(context.Background()))
	require.NoError(t, pipeline.Shutdown(context.Background()))

	spans := exporter.spans()
	require.Len(t, spans, 1)
	// Child of the remote caller, not a new root.
	assert.Equal(t, remote.TraceID, spans[0].Context.TraceID)
	assert.Equal(t, remote.SpanID, spans[0].Context.ParentSpanID)
}

func TestWrapConcurrentFlowIsolation(t *testing.T) {
	interceptor, pipeline, exporter := newTestInterceptor(t)

	const flows = 8
	inner := interceptor.WrapFunc("inner", oteltrace.SpanKindInternal, func(ctx context.Context) error {
		return nil
	})
	outer := interceptor.WrapFunc("outer", oteltrace.SpanKindServer, func(ctx context.Context) error {
		return inner(ctx)
	})

	var wg sync.WaitGroup
	for i := 0; i < flows; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, outer(context.Background()))
		}()
	}
	wg.Wait()
	require.NoError(t, pipeline.Shutdown(context.Background()))

	spans := exporter.spans()
	require.Len(t, spans, flows*2)

	outerByTrace := map[oteltrace.TraceID]*Span{}
	for _, s := range spans {
		if s.Name == "outer" {
			outerByTrace[s.Context.TraceID] = s
		}
	}
	// Every flow produced its own trace.
	require.Len(t, outerByTrace, flows)

	// Each inner span is parented on the outer span of its own trace,
	// never on another flow's.
	for _, s := range spans {
		if s.Name != "inner" {
			continue
		}
		parent, ok := outerByTrace[s.Context.TraceID]
		require.True(t, ok)
		assert.Equal(t, parent.Context.SpanID, s.Context.ParentSpanID)
	}
}

func TestDisabledTracerSpansAreNoOps(t *testing.T) {
	pipeline, exporter := newTestPipeline(testConfig())
	tracer := NewTracer(pipeline, false)
	interceptor := NewInterceptor(tracer)

	wrapped := interceptor.WrapFunc("op", oteltrace.SpanKindInternal, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, wrapped(context.Background()))
	require.NoError(t, pipeline.Shutdown(context.Background()))

	assert.Empty(t, exporter.spans())
}
