package trace

import (
	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// NewTraceID generates a 128-bit trace identifier. A random UUID is
// exactly the right shape; the loop guards against the all-zero value,
// which the wire format reserves for "no trace".
func NewTraceID() oteltrace.TraceID {
	for {
		id := oteltrace.TraceID(uuid.New())
		if id.IsValid() {
			return id
		}
	}
}

// NewSpanID generates a 64-bit span identifier from the high half of a
// random UUID. Span IDs only need to be unique within one trace, so
// 64 random bits are plenty.
func NewSpanID() oteltrace.SpanID {
	for {
		u := uuid.New()
		var id oteltrace.SpanID
		copy(id[:], u[:8])
		if id.IsValid() {
			return id
		}
	}
}
