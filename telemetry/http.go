// HTTP instrumentation: server middleware and client transport.
//
// The middleware extracts W3C trace context from inbound requests and
// opens a server span per request; the transport opens a client span
// and injects the context into outbound requests. Both are idempotent -
// rewrapping with the same tracer leaves the first wrap in place, and
// rewrapping with a new tracer replaces it without stacking - so
// overlapping adapters cannot double-count a request.

package telemetry

import (
	"net/http"
	"regexp"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/optic-dev/optic-go/trace"
)

// HTTPOptions configures the HTTP instrumentation.
type HTTPOptions struct {
	Tracer *Tracer
	Meter  *Meter

	// ExcludedURLs are request path patterns (regular expressions) that
	// bypass span creation entirely. The only overhead for an excluded
	// path is the match check; log correlation is unaffected.
	ExcludedURLs []string

	// SpanNameFunc overrides the default "HTTP {method} {path}" name.
	SpanNameFunc func(r *http.Request) string
}

// Middleware returns HTTP middleware that creates a server span per
// request, parented on the extracted remote context when one is
// present.
func Middleware(opts HTTPOptions) func(http.Handler) http.Handler {
	matcher := compilePatterns(opts.ExcludedURLs)
	return func(next http.Handler) http.Handler {
		if h, ok := next.(*tracedHandler); ok {
			if h.opts.Tracer == opts.Tracer && h.opts.Meter == opts.Meter {
				return h
			}
			// A wrapper bound to a previous tracer is stale, not
			// instrumented: rewrap its inner handler instead of
			// stacking.
			next = h.next
		}
		return &tracedHandler{next: next, opts: opts, excluded: matcher}
	}
}

// tracedHandler is the idempotency marker for server-side wrapping.
type tracedHandler struct {
	next     http.Handler
	opts     HTTPOptions
	excluded []*regexp.Regexp
}

func (h *tracedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if matchAny(h.excluded, r.URL.Path) {
		h.next.ServeHTTP(w, r)
		return
	}

	parent := trace.Extract(trace.HeaderCarrier(r.Header))
	if !parent.IsValid() {
		parent = trace.FromContext(r.Context())
	}

	name := "HTTP " + r.Method + " " + r.URL.Path
	if h.opts.SpanNameFunc != nil {
		name = h.opts.SpanNameFunc(r)
	}

	start := time.Now()
	ctx, span := h.opts.Tracer.StartSpanFrom(r.Context(), parent, name, oteltrace.SpanKindServer)
	span.SetAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.target", r.URL.Path),
		attribute.String("http.host", r.Host),
	)
	defer span.End()

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.next.ServeHTTP(rec, r.WithContext(ctx))

	span.SetAttributes(attribute.Int("http.status_code", rec.status))
	if rec.status >= 500 {
		span.SetStatus(codes.Error, http.StatusText(rec.status))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if h.opts.Meter != nil {
		attrs := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.Int("http.status_code", rec.status),
		}
		h.opts.Meter.Counter("http.server.requests", 1, attrs...)
		h.opts.Meter.Histogram("http.server.duration_ms",
			float64(time.Since(start))/float64(time.Millisecond), attrs...)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// WrapTransport instruments an http.RoundTripper: each outbound request
// gets a client span and carries the serialized trace context in its
// headers. A nil base uses http.DefaultTransport. Wrapping an already
// wrapped transport returns it unchanged when the tracer matches, and
// rebinds it when it does not.
func WrapTransport(tracer *Tracer, meter *Meter, base http.RoundTripper) http.RoundTripper {
	if t, ok := base.(*tracedTransport); ok {
		if t.tracer == tracer && t.meter == meter {
			return t
		}
		// Rebinding after a shutdown/re-init cycle: take over the
		// inner transport so spans flow to the live pipeline instead
		// of the stopped one.
		base = t.base
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &tracedTransport{base: base, tracer: tracer, meter: meter}
}

// tracedTransport is the idempotency marker for client-side wrapping.
type tracedTransport struct {
	base   http.RoundTripper
	tracer *Tracer
	meter  *Meter
}

func (t *tracedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.StartSpan(req.Context(), "HTTP "+req.Method, oteltrace.SpanKindClient)
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.url", req.URL.String()),
	)
	defer span.End()

	// RoundTrippers must not mutate the caller's request.
	outbound := req.Clone(ctx)
	trace.Inject(span.Context, trace.HeaderCarrier(outbound.Header))

	start := time.Now()
	resp, err := t.base.RoundTrip(outbound)
	if err != nil {
		span.RecordError(err)
		return resp, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if t.meter != nil {
		t.meter.Histogram("http.client.duration_ms",
			float64(time.Since(start))/float64(time.Millisecond),
			attribute.String("http.method", req.Method),
			attribute.Int("http.status_code", resp.StatusCode),
		)
	}
	return resp, nil
}

// NewHTTPClient returns an http.Client whose requests are traced and
// propagate context downstream.
func NewHTTPClient(tracer *Tracer, meter *Meter) *http.Client {
	return &http.Client{Transport: WrapTransport(tracer, meter, nil)}
}

// httpAdapter wires outbound HTTP instrumentation process-wide by
// wrapping http.DefaultTransport. Server-side instrumentation cannot be
// installed globally in Go; applications attach Middleware to their
// handler chain.
type httpAdapter struct{}

// HTTPAdapterDescriptor describes the net/http adapter. net/http is
// part of the standard library and therefore always active.
func HTTPAdapterDescriptor() (AdapterDescriptor, AdapterFactory) {
	return AdapterDescriptor{Name: "net/http"}, func() Adapter { return &httpAdapter{} }
}

func (a *httpAdapter) Install(deps AdapterDeps) error {
	http.DefaultTransport = WrapTransport(deps.Tracer, deps.Meter, http.DefaultTransport)
	return nil
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			// Fall back to treating the pattern as a literal path.
			re = regexp.MustCompile(regexp.QuoteMeta(p))
		}
		out = append(out, re)
	}
	return out
}

func matchAny(patterns []*regexp.Regexp, path string) bool {
	for _, re := range patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
