package trace

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/baggage"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// W3C Trace Context header names. These are the only wire fields the
// SDK reads or writes when a call crosses a process boundary.
const (
	TraceparentHeader = "traceparent"
	BaggageHeader     = "baggage"

	traceparentVersion = "00"
)

// Carrier abstracts the header-equivalent fields of an outbound or
// inbound request.
type Carrier interface {
	Get(key string) string
	Set(key, value string)
}

// HeaderCarrier adapts http.Header to the Carrier interface.
type HeaderCarrier http.Header

func (c HeaderCarrier) Get(key string) string {
	return http.Header(c).Get(key)
}

func (c HeaderCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

// MapCarrier adapts a plain string map, useful for message-queue
// metadata and tests.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string { return c[key] }

func (c MapCarrier) Set(key, value string) { c[key] = value }

// Inject serializes sc into carrier using the W3C traceparent format,
// plus a baggage header when baggage is present. Injecting an invalid
// context writes nothing.
func Inject(sc SpanContext, carrier Carrier) {
	if !sc.IsValid() {
		return
	}
	flags := "00"
	if sc.Sampled {
		flags = "01"
	}
	carrier.Set(TraceparentHeader, fmt.Sprintf("%s-%s-%s-%s",
		traceparentVersion, sc.TraceID.String(), sc.SpanID.String(), flags))
	if sc.Baggage.Len() > 0 {
		carrier.Set(BaggageHeader, sc.Baggage.String())
	}
}

// Extract deserializes a SpanContext from carrier. Any malformed input
// degrades to the empty context - extraction can never fail a request.
// A successfully extracted context is marked Remote so the interceptor
// parents the inbound span on it instead of starting a new root.
func Extract(carrier Carrier) SpanContext {
	header := carrier.Get(TraceparentHeader)
	if header == "" {
		return Empty()
	}

	parts := strings.Split(strings.TrimSpace(header), "-")
	if len(parts) != 4 || parts[0] != traceparentVersion {
		return Empty()
	}
	traceID, err := oteltrace.TraceIDFromHex(parts[1])
	if err != nil {
		return Empty()
	}
	spanID, err := oteltrace.SpanIDFromHex(parts[2])
	if err != nil {
		return Empty()
	}
	if len(parts[3]) != 2 {
		return Empty()
	}
	// The flags field is a hex byte; sampling is bit 0, whatever the
	// other bits carry.
	flags, err := strconv.ParseUint(parts[3], 16, 8)
	if err != nil {
		return Empty()
	}

	sc := SpanContext{
		TraceID: traceID,
		SpanID:  spanID,
		Sampled: flags&0x01 != 0,
		Remote:  true,
	}

	if raw := carrier.Get(BaggageHeader); raw != "" {
		// Bad baggage does not invalidate the trace identifiers.
		if bag, err := baggage.Parse(raw); err == nil {
			sc.Baggage = bag
		}
	}
	return sc
}
